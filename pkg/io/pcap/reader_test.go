package pcap

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPacket(t *testing.T, tcp bool, payload int) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
		Protocol: layers.IPProtocolUDP,
	}
	var transport gopacket.SerializableLayer
	if tcp {
		ip.Protocol = layers.IPProtocolTCP
		seg := &layers.TCP{SrcPort: 40000, DstPort: 443, SYN: true}
		require.NoError(t, seg.SetNetworkLayerForChecksum(ip))
		transport = seg
	} else {
		dgram := &layers.UDP{SrcPort: 40000, DstPort: 53}
		require.NoError(t, dgram.SetNetworkLayerForChecksum(ip))
		transport = dgram
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(make([]byte, payload))))
	return buf.Bytes()
}

func writeCapture(t *testing.T, packets []struct {
	at  time.Time
	tcp bool
}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, p := range packets {
		data := buildPacket(t, p.tcp, 10)
		ci := gopacket.CaptureInfo{Timestamp: p.at, CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestReaderBuckets(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path := writeCapture(t, []struct {
		at  time.Time
		tcp bool
	}{
		{base.Add(5 * time.Second), true},
		{base.Add(20 * time.Second), false},
		{base.Add(70 * time.Second), true},
		// nothing in the third minute
		{base.Add(190 * time.Second), false},
	})

	r, err := NewFileReader(path, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	s, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"packets", "bytes", "tcp", "udp"}, s.Columns)
	require.Equal(t, 4, s.Len())
	assert.Equal(t, base, s.Start())
	assert.Equal(t, []float64{2, 1, 0, 1}, s.Values[0])
	assert.Equal(t, []float64{1, 1, 0, 0}, s.Values[2])
	assert.Equal(t, []float64{1, 0, 0, 1}, s.Values[3])
	assert.Equal(t, 0.0, s.Values[1][2])
	assert.Greater(t, s.Values[1][0], s.Values[1][1])
}

func TestExtract(t *testing.T) {
	e := NewFeatureExtractor()
	packet := gopacket.NewPacket(buildPacket(t, true, 0), layers.LayerTypeEthernet, gopacket.Default)

	features, err := e.Extract(packet)
	require.NoError(t, err)
	assert.Len(t, features, len(e.FeatureNames()))
	assert.Equal(t, 1.0, features[0])
	assert.Equal(t, 1.0, features[2])
	assert.Equal(t, 0.0, features[3])

	_, err = e.Extract("not a packet")
	assert.Error(t, err)
}

func TestNewFileReaderErrors(t *testing.T) {
	_, err := NewFileReader(filepath.Join(t.TempDir(), "missing.pcap"), time.Minute)
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a capture"), 0o644))
	_, err = NewFileReader(garbage, time.Minute)
	assert.Error(t, err)
}
