package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hed1ad/gostatsig/internal/logger"
	"github.com/hed1ad/gostatsig/pkg/detectors"
	"github.com/hed1ad/gostatsig/pkg/detectors/statsig"
	sio "github.com/hed1ad/gostatsig/pkg/io"
	"github.com/hed1ad/gostatsig/pkg/timeseries"
)

// seriesPayload is the wire form of a series. Columns may be omitted for a
// single value column.
type seriesPayload struct {
	Timestamps []time.Time `json:"timestamps"`
	Columns    []string    `json:"columns,omitempty"`
	Values     [][]float64 `json:"values"`
}

func (p *seriesPayload) series() (*timeseries.Series, error) {
	if p == nil {
		return nil, nil
	}
	cols := p.Columns
	if len(cols) == 0 && len(p.Values) == 1 {
		cols = []string{timeseries.DefaultColumn}
	}
	s, err := timeseries.NewMulti(p.Timestamps, cols, p.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detectors.ErrValidation, err)
	}
	return s, nil
}

type detectRequest struct {
	// Model is a serialized detector configuration; absent means the server default.
	Model      json.RawMessage `json:"model,omitempty"`
	Data       seriesPayload   `json:"data"`
	Historical *seriesPayload  `json:"historical,omitempty"`
	Threshold  *float64        `json:"threshold,omitempty"`
	RemSeason  *bool           `json:"rem_season,omitempty"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	log := logger.C(r.Context(), &s.log)

	var req detectRequest
	if err := decodeJSON(w, r, s.cfg.Server.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.cfg.Detector.Config
	if len(req.Model) > 0 {
		parsed, err := statsig.ParseConfig(req.Model)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		cfg = parsed
	}
	threshold := s.cfg.Output.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	data, err := req.Data.series()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	hist, err := req.Historical.series()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	out, err := s.detect(cfg, data, hist, req.RemSeason, *log)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Msg("detect failed")
		}
		writeError(w, status, err.Error())
		return
	}
	results := sio.ResultsFromResponse(out.response, threshold)

	payload := resultsPayload{
		TimeUnit:         out.timeUnit,
		BigDataTransform: out.bigData,
		Results:          results,
	}
	if s.store != nil {
		runID := uuid.New()
		if err := s.store.WriteRun(r.Context(), runID, results); err != nil {
			log.Error().Err(err).Msg("persisting results")
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		payload.RunID = runID.String()
	}

	log.Debug().Int("points", data.Len()).Int("columns", data.Width()).Msg("detected")
	writeJSON(w, http.StatusOK, payload)
}

type detectOutcome struct {
	response *detectors.Response
	timeUnit string
	bigData  bool
}

// detect runs the univariate or the multivariate detector depending on the width of data.
func (s *Server) detect(cfg statsig.Config, data, hist *timeseries.Series, remSeason *bool, log zerolog.Logger) (*detectOutcome, error) {
	opts := s.cfg.DetectorOptions(log)

	if data.Width() > 1 {
		m, err := statsig.NewMulti(cfg, opts...)
		if err != nil {
			return nil, err
		}
		var callOpts []statsig.CallOption
		if remSeason != nil {
			callOpts = append(callOpts, statsig.RemoveSeason(*remSeason))
		}
		resp, err := m.FitPredictWith(data, hist, callOpts...)
		if err != nil {
			return nil, err
		}
		return &detectOutcome{response: resp, timeUnit: m.TimeUnit(), bigData: m.BigDataTransform()}, nil
	}

	if remSeason != nil {
		cfg.RemSeason = *remSeason
	}
	d, err := statsig.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := d.FitPredict(data, hist)
	if err != nil {
		return nil, err
	}
	return &detectOutcome{response: resp, timeUnit: d.TimeUnit(), bigData: d.BigDataTransform()}, nil
}

func (s *Server) handleSerialize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := statsig.ParseConfig(body)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	out, err := cfg.Serialize()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}
