package engine

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/comptaflow/comptaflow/internal/ai"
	"github.com/comptaflow/comptaflow/internal/documents"
	"github.com/comptaflow/comptaflow/internal/platform/httpx"
)

// Handler wires the posting engine HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	repo      Repository
	charts    ChartPort
	generator *Generator
	coord     *Coordinator
	batch     *BatchController
	enqueue   EnqueueFunc
	validator *validator.Validate
	opts      Options
}

// EnqueueFunc schedules an async regeneration and returns the task id.
type EnqueueFunc func(tenantID int64) (string, error)

// HandlerConfig groups the handler dependencies.
type HandlerConfig struct {
	Logger    *slog.Logger
	Repo      Repository
	Charts    ChartPort
	Generator *Generator
	Coord     *Coordinator
	Batch     *BatchController
	Enqueue   EnqueueFunc
	Opts      Options
}

// NewHandler builds a Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		logger:    cfg.Logger,
		repo:      cfg.Repo,
		charts:    cfg.Charts,
		generator: cfg.Generator,
		coord:     cfg.Coord,
		batch:     cfg.Batch,
		enqueue:   cfg.Enqueue,
		validator: validator.New(),
		opts:      cfg.Opts,
	}
}

// MountRoutes registers the posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents/{id}/generate", h.handleGenerate)
	r.Post("/documents/recognize", h.handleRecognize)
	r.Post("/tenants/{tenantID}/regenerate", h.handleRegenerate)
	r.Post("/tenants/{tenantID}/regenerate/async", h.handleRegenerateAsync)
}

type generateRequest struct {
	TenantID int64  `json:"tenantId" validate:"required,gt=0"`
	Kind     string `json:"kind" validate:"required"`
	UseAI    *bool  `json:"useAI"`
}

type entryView struct {
	Compte  string  `json:"compte"`
	Libelle string  `json:"libelle"`
	Debit   float64 `json:"debit"`
	Credit  float64 `json:"credit"`
}

type generateResponse struct {
	Entries          []entryView `json:"ecritures"`
	RejectedAccounts []string    `json:"rejectedAccounts,omitempty"`
	TotalDebit       float64     `json:"totalDebit"`
	TotalCredit      float64     `json:"totalCredit"`
	IsBalanced       bool        `json:"isBalanced"`
	Method           Method      `json:"method"`
	Confidence       float64     `json:"confidence"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "document id must be a positive integer")
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	kind, err := documents.ParseKind(req.Kind)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}

	ctx := r.Context()
	doc, err := h.repo.GetDocument(ctx, id, kind)
	if err != nil {
		h.respondError(w, err)
		return
	}
	// A tenant mismatch is indistinguishable from absence on purpose.
	if doc.TenantID != req.TenantID {
		h.respondError(w, documents.ErrTenantMismatch)
		return
	}
	chart, err := h.charts.ListAccounts(ctx, req.TenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if len(chart) == 0 {
		h.respondError(w, ErrMissingChart)
		return
	}

	opts := h.opts
	if req.UseAI != nil {
		opts.UseAI = *req.UseAI
	}
	result, err := h.generator.Generate(ctx, doc, chart, opts)
	if err != nil {
		h.respondError(w, err)
		return
	}
	rec := Reconcile(result.Entries, chart)
	if len(rec.Accepted) == 0 {
		h.respondError(w, ErrNoEntries)
		return
	}
	if _, err := h.coord.Commit(ctx, doc.Ref(), rec.Accepted); err != nil {
		h.respondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, generateResponse{
		Entries:          toEntryViews(rec.Accepted),
		RejectedAccounts: rec.RejectedAccountCodes,
		TotalDebit:       rec.TotalDebit,
		TotalCredit:      rec.TotalCredit,
		IsBalanced:       rec.IsBalanced,
		Method:           result.Method,
		Confidence:       result.Confidence,
	})
}

type recognizeRequest struct {
	Image    string `json:"image" validate:"required"`
	MimeType string `json:"mimeType"`
}

func (h *Handler) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "image must be base64 encoded")
		return
	}

	result, err := h.generator.GenerateFromImage(r.Context(), image, req.MimeType, h.opts)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"journal":     result.Journal,
		"champs":      result.Fields,
		"ecritures":   toEntryViews(result.Entries),
		"totalDebit":  result.TotalDebit,
		"totalCredit": result.TotalCredit,
		"isBalanced":  result.IsBalanced,
		"method":      result.Method,
		"confidence":  result.Confidence,
	})
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "tenant id must be a positive integer")
		return
	}
	report, err := h.batch.RegenerateAll(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleRegenerateAsync(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || tenantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "tenant id must be a positive integer")
		return
	}
	if h.enqueue == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background worker not configured")
		return
	}
	taskID, err := h.enqueue(tenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func toEntryViews(entries []ProposedEntry) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entryView{
			Compte:  entry.AccountCode,
			Libelle: entry.Label,
			Debit:   entry.Debit,
			Credit:  entry.Credit,
		})
	}
	return views
}

// respondError maps engine errors onto the outward error categories.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch ai.KindOf(err) {
	case ai.KindRateLimited:
		httpx.Problem(w, http.StatusTooManyRequests, "AI Quota Exceeded", err.Error())
		return
	case ai.KindAuth:
		httpx.Problem(w, http.StatusInternalServerError, "AI Configuration Error", err.Error())
		return
	case ai.KindParse, ai.KindTimeout, ai.KindUnavailable:
		httpx.Problem(w, http.StatusInternalServerError, "Generation Failed", err.Error())
		return
	}
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		httpx.Problem(w, http.StatusInternalServerError, "AI Configuration Error", err.Error())
	case errors.Is(err, ErrMissingDocument), errors.Is(err, ErrMissingChart), errors.Is(err, documents.ErrUnknownKind):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, documents.ErrDocumentNotFound), errors.Is(err, documents.ErrTenantMismatch):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
	default:
		if h.logger != nil {
			h.logger.Error("posting request failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Generation Failed", err.Error())
	}
}
