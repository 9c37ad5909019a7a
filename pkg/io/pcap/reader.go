// Package pcap turns packet captures into per-interval traffic series.
package pcap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	sio "github.com/hed1ad/gostatsig/pkg/io"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

// DefaultInterval is the bucket width used when none is given.
const DefaultInterval = time.Minute

type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader buckets the packets of a capture file into a regular series with one
// column per extracted feature. Buckets without packets are zero.
type Reader struct {
	file      *os.File
	source    packetSource
	extractor *FeatureExtractor
	interval  time.Duration
}

var _ sio.Reader = (*Reader)(nil)

// NewFileReader opens a pcap or pcapng file.
func NewFileReader(filename string, interval time.Duration) (*Reader, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	source, err := openSource(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Reader{
		file:      file,
		source:    source,
		extractor: NewFeatureExtractor(),
		interval:  interval,
	}, nil
}

func openSource(file *os.File) (packetSource, error) {
	if r, err := pcapgo.NewReader(file); err == nil {
		return r, nil
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, err := pcapgo.NewNgReader(file, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, fmt.Errorf("not a pcap or pcapng file: %w", err)
	}
	return r, nil
}

// Read returns the bucketed feature series.
func (r *Reader) Read() (*timeseries.Series, error) {
	if r.source == nil {
		return nil, errors.New("reader not initialized")
	}

	var (
		start   time.Time
		buckets [][]float64
	)
	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())
	for packet := range packetSource.Packets() {
		md := packet.Metadata()
		if md == nil || md.Timestamp.IsZero() {
			continue
		}
		ts := md.Timestamp.UTC()
		if start.IsZero() {
			start = ts.Truncate(r.interval)
		}
		if ts.Before(start) {
			continue
		}

		idx := int(ts.Sub(start) / r.interval)
		for len(buckets) <= idx {
			buckets = append(buckets, make([]float64, len(r.extractor.FeatureNames())))
		}
		for i, v := range r.extractor.extract(packet) {
			buckets[idx][i] += v
		}
	}

	names := r.extractor.FeatureNames()
	timestamps := make([]time.Time, len(buckets))
	values := make([][]float64, len(names))
	for c := range values {
		values[c] = make([]float64, len(buckets))
	}
	for i, b := range buckets {
		timestamps[i] = start.Add(time.Duration(i) * r.interval)
		for c, v := range b {
			values[c][i] = v
		}
	}
	return timeseries.NewMulti(timestamps, names, values)
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// FeatureExtractor extracts per-packet traffic counters that add up over a bucket.
type FeatureExtractor struct{}

var _ sio.FeatureExtractor = (*FeatureExtractor)(nil)

// NewFeatureExtractor creates a new packet feature extractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract converts a gopacket.Packet to a feature vector.
// Features: [packets, bytes, tcp, udp]
func (e *FeatureExtractor) Extract(data any) ([]float64, error) {
	packet, ok := data.(gopacket.Packet)
	if !ok {
		return nil, fmt.Errorf("expected gopacket.Packet, got %T", data)
	}
	return e.extract(packet), nil
}

func (e *FeatureExtractor) extract(packet gopacket.Packet) []float64 {
	features := make([]float64, 4)
	features[0] = 1

	size := len(packet.Data())
	if md := packet.Metadata(); md != nil && md.Length > 0 {
		size = md.Length
	}
	features[1] = float64(size)

	if packet.Layer(layers.LayerTypeTCP) != nil {
		features[2] = 1
	} else if packet.Layer(layers.LayerTypeUDP) != nil {
		features[3] = 1
	}
	return features
}

// FeatureNames returns the names of extracted features.
func (e *FeatureExtractor) FeatureNames() []string {
	return []string{
		"packets",
		"bytes",
		"tcp",
		"udp",
	}
}
