// Package backend is the HTTP client for the remote analysis service.
// Each of the four pipeline stages is one call; every call returns either a
// validated result or a *backend.Error, never a partially decoded payload.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"veritas/internal/config"
	"veritas/internal/logging"
	"veritas/internal/types"

	"github.com/google/uuid"
)

// Options configures a Client.
type Options struct {
	BaseURL          string
	Timeouts         config.ResolvedTimeouts
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	MaxUploadBytes   int64
	MaxResponseBytes int64

	// HTTPClient is optional; a client without a transport timeout is used by
	// default so the per-stage context deadlines are authoritative.
	HTTPClient *http.Client
}

// Client calls the analysis service.
type Client struct {
	baseURL          string
	timeouts         config.ResolvedTimeouts
	retryAttempts    int
	retryBaseDelay   time.Duration
	maxUploadBytes   int64
	maxResponseBytes int64
	httpClient       *http.Client
}

// ServiceInfo is the liveness banner served at GET /.
type ServiceInfo struct {
	Status string `json:"status"`
	Engine string `json:"engine"`
}

// NewFromConfig creates a client from the backend section of cfg.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	return New(Options{
		BaseURL:          cfg.Backend.BaseURL,
		Timeouts:         cfg.Backend.Timeouts.Durations(),
		RetryAttempts:    cfg.GetRetryAttempts(),
		RetryBaseDelay:   cfg.GetRetryBaseDelay(),
		MaxUploadBytes:   cfg.Backend.MaxUploadBytes,
		MaxResponseBytes: cfg.Backend.MaxResponseBytes,
	})
}

// New creates a client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: need http(s)://host", opts.BaseURL)
	}

	c := &Client{
		baseURL:          strings.TrimRight(u.String(), "/"),
		timeouts:         opts.Timeouts,
		retryAttempts:    opts.RetryAttempts,
		retryBaseDelay:   opts.RetryBaseDelay,
		maxUploadBytes:   opts.MaxUploadBytes,
		maxResponseBytes: opts.MaxResponseBytes,
		httpClient:       opts.HTTPClient,
	}
	defaults := config.DefaultStageTimeouts().Durations()
	if c.timeouts.Triage <= 0 {
		c.timeouts.Triage = defaults.Triage
	}
	if c.timeouts.DeepDive <= 0 {
		c.timeouts.DeepDive = defaults.DeepDive
	}
	if c.timeouts.Adjudication <= 0 {
		c.timeouts.Adjudication = defaults.Adjudication
	}
	if c.timeouts.Reconstruction <= 0 {
		c.timeouts.Reconstruction = defaults.Reconstruction
	}
	if c.retryAttempts < 1 {
		c.retryAttempts = 1
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = 200 * time.Millisecond
	}
	if c.maxResponseBytes <= 0 {
		c.maxResponseBytes = 4 << 20
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

// BaseURL returns the normalized service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Triage submits text and/or a file to POST /scan.
func (c *Client) Triage(ctx context.Context, sub types.ScanSubmission) (types.TriageResult, error) {
	if !sub.Ready() {
		return types.TriageResult{}, &Error{Stage: types.StageTriage, Kind: types.FailureRefused, Err: ErrEmptySubmission}
	}
	if sub.HasAttachment() && c.maxUploadBytes > 0 && int64(len(sub.Attachment.Data)) > c.maxUploadBytes {
		return types.TriageResult{}, &Error{
			Stage: types.StageTriage,
			Kind:  types.FailureRefused,
			Err:   fmt.Errorf("%w: %s is %d bytes, limit %d", ErrAttachmentTooLarge, sub.Attachment.Name, len(sub.Attachment.Data), c.maxUploadBytes),
		}
	}

	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return types.TriageResult{}, &Error{Stage: types.StageTriage, Kind: types.FailureRefused, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Triage)
	defer cancel()

	return call[types.TriageResult](ctx, c, request{
		stage:       types.StageTriage,
		method:      http.MethodPost,
		path:        "/scan",
		body:        body,
		contentType: contentType,
	})
}

// DeepDive fetches GET /scan/{id}/deep_dive. Transient failures are retried.
func (c *Client) DeepDive(ctx context.Context, scanID string) (types.DeepDiveResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.DeepDive)
	defer cancel()

	var result types.DeepDiveResult
	err := retry(ctx, c.retryAttempts, c.retryBaseDelay, func() error {
		var err error
		result, err = call[types.DeepDiveResult](ctx, c, request{
			stage:  types.StageDeepDive,
			method: http.MethodGet,
			path:   scanPath(scanID, "deep_dive"),
			scanID: scanID,
		})
		return err
	})
	if err != nil {
		return types.DeepDiveResult{}, err
	}
	result.ScanID = scanID
	return result, nil
}

// Adjudicate triggers POST /scan/{id}/supreme_court.
func (c *Client) Adjudicate(ctx context.Context, scanID string) (types.AdjudicationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Adjudication)
	defer cancel()

	result, err := call[types.AdjudicationResult](ctx, c, request{
		stage:  types.StageAdjudication,
		method: http.MethodPost,
		path:   scanPath(scanID, "supreme_court"),
		scanID: scanID,
	})
	if err != nil {
		return types.AdjudicationResult{}, err
	}
	result.ScanID = scanID
	return result, nil
}

// Reconstruct triggers POST /scan/{id}/firewall_reconstruction.
func (c *Client) Reconstruct(ctx context.Context, scanID string) (types.ReconstructionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Reconstruction)
	defer cancel()

	result, err := call[types.ReconstructionResult](ctx, c, request{
		stage:  types.StageReconstruction,
		method: http.MethodPost,
		path:   scanPath(scanID, "firewall_reconstruction"),
		scanID: scanID,
	})
	if err != nil {
		return types.ReconstructionResult{}, err
	}
	result.ScanID = scanID
	return result, nil
}

// Health fetches the service banner at GET /.
func (c *Client) Health(ctx context.Context) (ServiceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Triage)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return ServiceInfo{}, err
	}
	req.Header.Set("Accept", "application/json")
	logging.APIDebug("GET %s/", c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ServiceInfo{}, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return ServiceInfo{}, fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	var info ServiceInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxResponseBytes)).Decode(&info); err != nil {
		return ServiceInfo{}, fmt.Errorf("failed to parse health response: %w", err)
	}
	logging.API("%s is %s (%s)", c.baseURL, info.Status, info.Engine)
	return info, nil
}

func scanPath(scanID, action string) string {
	return "/scan/" + url.PathEscape(scanID) + "/" + action
}

func encodeSubmission(sub types.ScanSubmission) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if sub.HasText() {
		if err := w.WriteField("text_content", sub.Text); err != nil {
			return nil, "", fmt.Errorf("failed to encode text_content: %w", err)
		}
	}
	if sub.HasAttachment() {
		part, err := w.CreateFormFile("file", sub.Attachment.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode file: %w", err)
		}
		if _, err := part.Write(sub.Attachment.Data); err != nil {
			return nil, "", fmt.Errorf("failed to encode file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// =============================================================================
// REQUEST PIPELINE
// =============================================================================

type request struct {
	stage       types.Stage
	method      string
	path        string
	body        []byte
	contentType string
	scanID      string
}

type validatable interface {
	Validate() ([]string, error)
}

// call performs one request and decodes a validated T.
func call[T validatable](ctx context.Context, c *Client, r request) (T, error) {
	var zero T
	requestID := uuid.NewString()
	log := logging.Get(logging.CategoryAPI).With("request_id", requestID, "stage", string(r.stage))

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return zero, &Error{Stage: r.stage, Kind: types.FailureRefused, RequestID: requestID, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	logging.Audit(logging.AuditEvent{Type: logging.AuditStageRequest, ScanID: r.scanID, Stage: string(r.stage), RequestID: requestID, Success: true})
	start := time.Now()

	fail := func(e *Error) (T, error) {
		e.RequestID = requestID
		log.Warn("%s %s failed after %v: %v", r.method, r.path, time.Since(start), e)
		logging.Audit(logging.AuditEvent{
			Type:      logging.AuditStageFailure,
			ScanID:    r.scanID,
			Stage:     string(r.stage),
			RequestID: requestID,
			Duration:  time.Since(start),
			Fields:    map[string]interface{}{"kind": string(e.Kind), "status_code": e.StatusCode},
		})
		return zero, e
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(&Error{Stage: r.stage, Kind: classifyTransport(err), Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return fail(&Error{Stage: r.stage, Kind: classifyTransport(err), StatusCode: 0, Err: fmt.Errorf("failed to read response: %w", err)})
	}
	if resp.StatusCode/100 != 2 {
		return fail(&Error{Stage: r.stage, Kind: types.FailureStatus, StatusCode: resp.StatusCode, Body: snippet(data)})
	}
	if int64(len(data)) > c.maxResponseBytes {
		return fail(&Error{Stage: r.stage, Kind: types.FailureDecode, Err: fmt.Errorf("response exceeds %d bytes", c.maxResponseBytes)})
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return fail(&Error{Stage: r.stage, Kind: types.FailureDecode, Err: fmt.Errorf("failed to parse response: %w", err)})
	}
	warnings, err := out.Validate()
	if err != nil {
		return fail(&Error{Stage: r.stage, Kind: types.FailureInvalid, Err: err})
	}
	for _, w := range warnings {
		log.Warn("payload warning: %s", w)
	}

	log.Debug("%s %s -> %d in %v", r.method, r.path, resp.StatusCode, time.Since(start))
	logging.Audit(logging.AuditEvent{Type: logging.AuditStageSuccess, ScanID: r.scanID, Stage: string(r.stage), RequestID: requestID, Duration: time.Since(start), Success: true})
	return out, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
