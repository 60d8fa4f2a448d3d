package evaluation

import (
	"encoding/json"
	"net/http"

	"github.com/scenegraph/sgeval/internal/dataset"
	"github.com/scenegraph/sgeval/internal/inference"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/security"
)

// Handler provides HTTP handlers for evaluation.
type Handler struct {
	kind     dataset.Kind
	vocab    *dataset.Vocabulary
	settings Settings
	opts     []Option
}

// NewHandler creates a handler that evaluates posted samples against vocab.
// opts apply to the evaluator built for every request.
func NewHandler(kind dataset.Kind, vocab *dataset.Vocabulary, settings Settings, opts ...Option) *Handler {
	return &Handler{kind: kind, vocab: vocab, settings: settings, opts: opts}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/evaluate", h.handleEvaluate)
	mux.HandleFunc("GET /v1/evaluation/vocabulary", h.handleVocabulary)
}

// EvaluateRequest carries a split's samples and the model outputs for them.
type EvaluateRequest struct {
	Split   string              `json:"split"`
	Samples []*dataset.Sample   `json:"samples"`
	Outputs []*inference.Output `json:"outputs"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	body := http.MaxBytesReader(w, r.Body, security.MaxRequestSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid JSON body: "+err.Error()))
		return
	}

	if req.Split == "" {
		req.Split = string(dataset.SplitValidation)
	}
	split, err := dataset.ParseSplit(req.Split)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := security.ValidateSampleCount(len(req.Samples)); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError(err.Error()))
		return
	}
	for _, s := range req.Samples {
		if s == nil {
			apperrors.WriteError(w, apperrors.InvalidRequestError("samples must not be null"))
			return
		}
		if err := security.ValidateIdentifier("scan_id", s.ScanID); err != nil {
			apperrors.WriteError(w, apperrors.InvalidRequestError(err.Error()))
			return
		}
	}

	for _, o := range req.Outputs {
		if o == nil {
			apperrors.WriteError(w, apperrors.InvalidRequestError("outputs must not be null"))
			return
		}
	}

	ev, err := NewEvaluator(inference.NewReplay(req.Outputs), h.settings, h.opts...)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	report, err := ev.Run(r.Context(), &dataset.Dataset{
		Kind:       h.kind,
		Split:      split,
		Vocabulary: h.vocab,
		Loader:     dataset.NewSliceLoader(req.Samples),
	})
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (h *Handler) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"kind":      h.kind,
		"objects":   h.vocab.Objects,
		"relations": h.vocab.Relations,
	})
}
