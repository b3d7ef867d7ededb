package stubserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"veritas/internal/logging"
	"veritas/internal/types"
)

// rooms maps each escalating category to its specialist analysis rooms.
var rooms = map[types.RiskCategory][]string{
	types.CategoryContextual: {"Digital Patient Zero Traceback", "TIDE-MARK Clustering", "Federated GNN Analysis"},
	types.CategorySynthetic:  {"Diffusion Artifact Lab", "FFT Anomaly Detection", "Optical Flow Consistency"},
	types.CategoryNarrative:  {"Sovereigner Sentiment Analysis", "Narrative Contradiction Engine", "LLM Hallucination Check"},
}

var escalating = []types.RiskCategory{types.CategoryContextual, types.CategorySynthetic, types.CategoryNarrative}

// RoutingDecision returns the rooms a scan is routed to. Scores below the benign
// cutoff are never routed.
func RoutingDecision(category types.RiskCategory, score int) []string {
	if score < benignCutoff {
		return []string{}
	}
	return append([]string{}, rooms[category]...)
}

// submission is what the stub extracted from a POST /scan body.
type submission struct {
	text     string
	fileName string
	fileSize int
}

func (sub submission) empty() bool {
	return strings.TrimSpace(sub.text) == "" && sub.fileName == ""
}

func readSubmission(r *http.Request) (submission, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		// Legacy form: {"url": "...", "media_id": "..."}
		var legacy struct {
			URL     string `json:"url"`
			MediaID string `json:"media_id"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&legacy); err != nil {
			return submission{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		text := legacy.URL
		if text == "" {
			text = legacy.MediaID
		}
		return submission{text: text}, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return submission{}, fmt.Errorf("invalid multipart body: %w", err)
		}
		sub := submission{text: r.FormValue("text_content")}
		if f, hdr, err := r.FormFile("file"); err == nil {
			defer f.Close()
			n, _ := io.Copy(io.Discard, f)
			sub.fileName = hdr.Filename
			sub.fileSize = int(n)
		}
		return sub, nil
	default:
		return submission{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	sub, err := readSubmission(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sub.empty() {
		writeError(w, http.StatusBadRequest, "Provide text_content or file")
		return
	}

	s.mu.Lock()
	id := s.newIDLocked()
	score := s.rng.IntN(101)
	confidence := round2(0.7 + s.rng.Float64()*0.29)
	category := types.CategoryBenign
	if score >= benignCutoff {
		category = escalating[s.rng.IntN(len(escalating))]
	}
	status := "completed"
	if score >= benignCutoff {
		status = "escalated"
	}
	result := types.TriageResult{
		ID:                 id,
		DeceptionScore:     score,
		Category:           category,
		Confidence:         confidence,
		ExplanationSummary: explain(category, score, sub),
		RoutingDecision:    RoutingDecision(category, score),
		Status:             status,
	}
	s.scans[id] = &record{triage: result, submittedAt: time.Now()}
	s.mu.Unlock()

	logging.Stub("scan %s: score=%d category=%s file=%q", id, score, category, sub.fileName)
	writeJSON(w, http.StatusOK, result)
}

// newIDLocked returns an unused scan id; caller holds s.mu.
func (s *Server) newIDLocked() string {
	for {
		id := fmt.Sprintf("scan_%d", 1000+s.rng.IntN(9000))
		if _, taken := s.scans[id]; !taken {
			return id
		}
		if len(s.scans) >= 9000 {
			return fmt.Sprintf("scan_%d", time.Now().UnixNano())
		}
	}
}

func explain(category types.RiskCategory, score int, sub submission) string {
	subject := "the submitted text"
	if sub.fileName != "" {
		subject = fmt.Sprintf("%s (%d bytes)", sub.fileName, sub.fileSize)
	}
	switch category {
	case types.CategoryContextual:
		return fmt.Sprintf("Semantic triage found out-of-context reuse signals in %s (risk %d/100).", subject, score)
	case types.CategorySynthetic:
		return fmt.Sprintf("Semantic triage found generative artifacts in %s (risk %d/100).", subject, score)
	case types.CategoryNarrative:
		return fmt.Sprintf("Semantic triage found coordinated narrative framing in %s (risk %d/100).", subject, score)
	default:
		return fmt.Sprintf("No manipulation signals found in %s.", subject)
	}
}

func (s *Server) handleDeepDive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")
	rec, ok := s.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}

	s.mu.Lock()
	findings := s.findingsLocked(rec.triage)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, types.DeepDiveResult{
		ScanID:   id,
		Feature:  "Deep Forensic Room",
		Category: string(rec.triage.Category),
		Findings: findings,
	})
}

// findingsLocked builds category-specific results in a fixed key order; caller
// holds s.mu.
func (s *Server) findingsLocked(t types.TriageResult) []types.Finding {
	suspicious := t.DeceptionScore >= benignCutoff
	prob := func() types.NumberValue { return types.NumberValue(round2(0.5 + s.rng.Float64()*0.49)) }
	count := func(lo, hi int) types.NumberValue { return types.NumberValue(lo + s.rng.IntN(hi-lo+1)) }

	switch t.Category {
	case types.CategoryContextual:
		return []types.Finding{
			{Key: "patient_zero_identified", Value: types.BoolValue(suspicious)},
			{Key: "propagation_nodes", Value: count(12, 480)},
			{Key: "first_seen_days", Value: count(1, 90)},
			{Key: "cluster_similarity", Value: prob()},
			{Key: "origin_platform", Value: types.TextValue("fringe forum repost")},
		}
	case types.CategorySynthetic:
		return []types.Finding{
			{Key: "gan_fingerprint_detected", Value: types.BoolValue(suspicious)},
			{Key: "fft_anomaly_score", Value: prob()},
			{Key: "optical_flow_breaks", Value: count(1, 24)},
			{Key: "generator_family", Value: types.TextValue("latent diffusion")},
		}
	case types.CategoryNarrative:
		return []types.Finding{
			{Key: "sentiment_polarity_shift", Value: prob()},
			{Key: "contradictions_found", Value: count(1, 12)},
			{Key: "hallucination_detected", Value: types.BoolValue(suspicious)},
			{Key: "dominant_frame", Value: types.TextValue("institutional distrust")},
		}
	default:
		return []types.Finding{
			{Key: "anomalies_detected", Value: types.BoolValue(false)},
			{Key: "baseline_similarity", Value: prob()},
		}
	}
}

func (s *Server) handleSupremeCourt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")
	s.mu.Lock()
	rec, ok := s.scans[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}
	if rec.adjudication == nil {
		adj := s.adjudicateLocked(rec.triage)
		rec.adjudication = &adj
	}
	result := *rec.adjudication
	s.mu.Unlock()

	logging.Stub("scan %s adjudicated: %s", id, result.Verdict)
	writeJSON(w, http.StatusOK, result)
}

// adjudicateLocked derives a verdict from the triage score; caller holds s.mu.
func (s *Server) adjudicateLocked(t types.TriageResult) types.AdjudicationResult {
	verdict := types.VerdictAuthentic
	switch {
	case t.DeceptionScore >= 70:
		verdict = types.VerdictManipulated
	case t.DeceptionScore >= benignCutoff:
		if s.rng.IntN(2) == 0 {
			verdict = types.VerdictManipulated
		} else {
			verdict = types.VerdictUncertain
		}
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", t.ID, t.DeceptionScore, verdict)))
	var b strings.Builder
	fmt.Fprintf(&b, "## Deliberation for %s\n\n", t.ID)
	fmt.Fprintf(&b, "- Triage risk: **%d/100** (%s)\n", t.DeceptionScore, t.Category)
	for _, room := range t.RoutingDecision {
		fmt.Fprintf(&b, "- %s: evidence admitted\n", room)
	}
	fmt.Fprintf(&b, "\nThe panel finds the content **%s**.\n", verdict)

	return types.AdjudicationResult{
		Verdict:               verdict,
		ReasoningLog:          b.String(),
		AuditTrail:            "sha256:" + hex.EncodeToString(sum[:]),
		ConfidenceCalibration: round2(0.6 + s.rng.Float64()*0.39),
		EvidenceHeatmap:       "heatmap://" + t.ID,
	}
}

func (s *Server) handleReconstruction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")
	s.mu.Lock()
	rec, ok := s.scans[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}
	if rec.adjudication == nil || !rec.adjudication.UnlocksReconstruction() {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Reconstruction requires a manipulated verdict")
		return
	}
	result := types.ReconstructionResult{
		InverseDiffusionModel:    "DDIM-Inverse v2",
		LatencyMS:                int64(80 + s.rng.IntN(320)),
		ReconstructionConfidence: round2(0.9 + s.rng.Float64()*0.09),
		StatusMessage:            "Original content reconstructed and verified against provenance index.",
		RevertAction:             "restore_original",
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
