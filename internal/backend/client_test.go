package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"veritas/internal/config"
	"veritas/internal/logging"
	"veritas/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Options{
		BaseURL:        server.URL + "/",
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		MaxUploadBytes: 1024,
	})
	require.NoError(t, err)
	return client
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "ftp://host", "http://"} {
		_, err := New(Options{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestNewFromConfigUsesConfiguredAddress(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = "https://forensics.example.com/api/"

	client, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://forensics.example.com/api", client.BaseURL())
	assert.Equal(t, 120*time.Second, client.timeouts.Reconstruction)
}

func TestTriage_MultipartTextAndFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/scan" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("text_content"); got != "breaking news: miracle cure" {
			t.Errorf("text_content = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "frame.png" || string(data) != "PNGDATA" {
			t.Errorf("unexpected file %s %q", header.Filename, data)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"scan_1234","deception_score":82,"category":"Synthetic","confidence":0.94,"explanation_summary":"...","routing_decision":["Diffusion Artifact Lab"],"status":"escalated"}`))
	})

	result, err := client.Triage(context.Background(), types.ScanSubmission{
		Text:       "breaking news: miracle cure",
		Attachment: &types.Attachment{Name: "frame.png", Data: []byte("PNGDATA")},
	})
	require.NoError(t, err)
	assert.Equal(t, "scan_1234", result.ID)
	assert.Equal(t, 82, result.DeceptionScore)
	assert.Equal(t, []string{"Diffusion Artifact Lab"}, result.RoutingDecision)
}

func TestTriage_TextOnlyOmitsFileField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if _, _, err := r.FormFile("file"); err == nil {
			t.Error("file field should be absent")
		}
		w.Write([]byte(`{"id":"scan_1","deception_score":10,"category":"Benign","confidence":0.8,"routing_decision":[],"status":"completed"}`))
	})

	result, err := client.Triage(context.Background(), types.ScanSubmission{Text: "hello"})
	require.NoError(t, err)
	assert.False(t, result.Escalatable())
}

func TestTriage_RefusedBeforeSending(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	_, err := client.Triage(context.Background(), types.ScanSubmission{Text: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptySubmission))

	_, err = client.Triage(context.Background(), types.ScanSubmission{
		Attachment: &types.Attachment{Name: "big.bin", Data: make([]byte, 2048)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttachmentTooLarge))
	assert.Equal(t, types.FailureRefused, FailureOf(types.StageTriage, err).Kind)

	assert.Zero(t, hits.Load())
}

func TestTriage_Non2xxIsStatusFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"engine offline"}`, http.StatusBadGateway)
	})

	_, err := client.Triage(context.Background(), types.ScanSubmission{Text: "x"})
	require.Error(t, err)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, types.FailureStatus, be.Kind)
	assert.Equal(t, http.StatusBadGateway, be.StatusCode)
	assert.NotEmpty(t, be.RequestID)

	failure := FailureOf(types.StageTriage, err)
	assert.Equal(t, types.StageTriage, failure.Stage)
	assert.Contains(t, failure.Reason, "engine offline")
}

func TestTriage_MalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind types.FailureKind
	}{
		{"not json", `<html>oops</html>`, types.FailureDecode},
		{"wrong shape", `{"id": 42}`, types.FailureDecode},
		{"missing id", `{"deception_score": 50}`, types.FailureInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			_, err := client.Triage(context.Background(), types.ScanSubmission{Text: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, FailureOf(types.StageTriage, err).Kind)
		})
	}
}

func TestTriage_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(Options{BaseURL: url})
	require.NoError(t, err)

	_, err = client.Triage(context.Background(), types.ScanSubmission{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, types.FailureTransport, FailureOf(types.StageTriage, err).Kind)
}

func TestDeepDive_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/scan/scan_7/deep_dive" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"feature":"FFT Anomaly Detection","phase2_category":"Synthetic","results":{"gan_fingerprint":true,"spectral_peaks":3}}`))
	})

	result, err := client.DeepDive(context.Background(), "scan_7")
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, "scan_7", result.ScanID)
	require.Len(t, result.Findings, 2)
	assert.Equal(t, types.BoolValue(true), result.Findings[0].Value)
}

func TestDeepDive_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Scan not found"}`))
	})

	_, err := client.DeepDive(context.Background(), "scan_missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, 404, FailureOf(types.StageDeepDive, err).StatusCode)
}

func TestDeepDive_RejectsNonObjectResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"feature":"x","phase2_category":"y","results":[1,2,3]}`))
	})
	_, err := client.DeepDive(context.Background(), "scan_1")
	require.Error(t, err)
	assert.Equal(t, types.FailureDecode, FailureOf(types.StageDeepDive, err).Kind)
}

func TestAdjudicate_PostsWithoutBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.EscapedPath() != "/scan/scan%2F1/supreme_court" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Errorf("expected empty body, got %q", body)
		}
		w.Write([]byte(`{"verdict":"uncertain","reasoning_log":"conflicting signals","audit_trail":"3 rooms","confidence_calibration":0.51,"evidence_heatmap":"frames 10-14"}`))
	})

	result, err := client.Adjudicate(context.Background(), "scan/1")
	require.NoError(t, err)
	assert.Equal(t, "scan/1", result.ScanID)
	assert.Equal(t, types.VerdictUncertain, result.Verdict)
	assert.False(t, result.UnlocksReconstruction())
}

func TestReconstruct_DecodesMetrics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scan/scan_1/firewall_reconstruction" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"inverse_diffusion_model":"InstantViR-student","latency_ms":840,"reconstruction_confidence":0.88,"status_message":"Baseline restored","revert_action":"Quarantined manipulated asset"}`))
	})

	result, err := client.Reconstruct(context.Background(), "scan_1")
	require.NoError(t, err)
	assert.Equal(t, int64(840), result.LatencyMS)
	assert.Equal(t, "scan_1", result.ScanID)
}

func TestReconstruct_NegativeLatencyIsInvalid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"inverse_diffusion_model":"m","latency_ms":-5}`))
	})
	_, err := client.Reconstruct(context.Background(), "scan_1")
	require.Error(t, err)
	assert.Equal(t, types.FailureInvalid, FailureOf(types.StageReconstruction, err).Kind)
}

func TestStageTimeoutIsReported(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := New(Options{
		BaseURL:  server.URL,
		Timeouts: config.ResolvedTimeouts{Adjudication: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	_, err = client.Adjudicate(context.Background(), "scan_1")
	require.Error(t, err)
	assert.Equal(t, types.FailureTimeout, FailureOf(types.StageAdjudication, err).Kind)
}

func TestCanceledContextIsReported(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Triage(ctx, types.ScanSubmission{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, types.FailureCanceled, FailureOf(types.StageTriage, err).Kind)
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"online","engine":"VERITAS Reasoning Engine v1.0"}`))
	})
	info, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "online", info.Status)
}

func TestHealthLogsToAPICategory(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.InitializeWithLogger(zap.New(core), config.LoggingConfig{})
	t.Cleanup(func() { logging.InitializeWithLogger(zap.NewNop(), config.LoggingConfig{}) })

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"online","engine":"VERITAS Reasoning Engine v1.0"}`))
	})
	_, err := client.Health(context.Background())
	require.NoError(t, err)

	entries := logs.FilterLoggerName("api").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Contains(t, entries[1].Message, "is online")
}

func TestToOutcome(t *testing.T) {
	ok := ToOutcome(types.StageTriage, types.TriageResult{ID: "scan_1"}, nil)
	assert.True(t, ok.OK())

	failed := ToOutcome(types.StageTriage, types.TriageResult{}, context.DeadlineExceeded)
	require.False(t, failed.OK())
	assert.Equal(t, types.FailureTimeout, failed.Failure.Kind)
}
