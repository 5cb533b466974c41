package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"assent/internal/identity"
	"assent/internal/ledger"
	"assent/internal/ledger/models"
	"assent/internal/platform/middleware"
	"assent/internal/policy"
	"assent/internal/transport/http/json"
	"assent/internal/transport/http/shared"
	"assent/internal/visibility"
	dErrors "assent/pkg/domain-errors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// LedgerService is the consent surface the HTTP layer depends on.
type LedgerService interface {
	Grant(ctx context.Context, id identity.Identity, category models.Category, source models.Source) (*models.Record, error)
	Revoke(ctx context.Context, id identity.Identity, category models.Category, source models.Source) (*models.Record, error)
	UpdatePreferences(ctx context.Context, id identity.Identity, partial map[models.Category]bool, source models.Source) ([]models.Record, error)
	AcceptAll(ctx context.Context, id identity.Identity, source models.Source) ([]models.Record, error)
	RejectNonEssential(ctx context.Context, id identity.Identity, source models.Source) ([]models.Record, error)
	RevokeAll(ctx context.Context, id identity.Identity, source models.Source) ([]models.Record, error)
	History(ctx context.Context, userID string, filter *models.HistoryFilter) ([]models.Record, error)
	Snapshot(ctx context.Context, userID string) (*models.State, error)
	MarkPrompted(ctx context.Context, userID string) error
	Export(ctx context.Context, userID string) (*ledger.ExportDocument, error)
	PolicyVersion() string
}

// HandleService issues and redeems export download handles.
type HandleService interface {
	Issue(ctx context.Context, userID string) (ledger.DownloadHandle, error)
	Redeem(ctx context.Context, id, token string) (string, error)
}

// ConsentHandler exposes the consent ledger over HTTP.
type ConsentHandler struct {
	logger     *slog.Logger
	ledger     LedgerService
	gate       *policy.Gate
	visibility *visibility.Controller
	handles    HandleService
	now        func() time.Time
}

// ConsentHandlerOption configures a ConsentHandler.
type ConsentHandlerOption func(*ConsentHandler)

// WithHandlerClock overrides the time source for tests.
func WithHandlerClock(now func() time.Time) ConsentHandlerOption {
	return func(h *ConsentHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewConsentHandler creates the consent HTTP handler.
func NewConsentHandler(
	logger *slog.Logger,
	ledgerSvc LedgerService,
	gate *policy.Gate,
	controller *visibility.Controller,
	handles HandleService,
	opts ...ConsentHandlerOption,
) *ConsentHandler {
	h := &ConsentHandler{
		logger:     logger,
		ledger:     ledgerSvc,
		gate:       gate,
		visibility: controller,
		handles:    handles,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts consent routes. The export download route is outside the
// auth group: it authenticates with the single-use handle token instead.
func (h *ConsentHandler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/v1/consent", h.handleConsentAction)
		r.Put("/v1/consent/preferences", h.handleUpdatePreferences)
		r.Post("/v1/consent/accept-all", h.handleAcceptAll)
		r.Post("/v1/consent/reject-non-essential", h.handleRejectNonEssential)
		r.Post("/v1/consent/revoke", h.handleRevoke)
		r.Post("/v1/consent/revoke-all", h.handleRevokeAll)
		r.Post("/v1/consent/banner-dismissed", h.handleBannerDismissed)

		r.Get("/v1/consent/history", h.handleHistory)
		r.Get("/v1/consent/status", h.handleStatus)
		r.Get("/v1/consent/renewal", h.handleRenewal)
		r.Get("/v1/consent/banner", h.handleBanner)
		r.Get("/v1/consent/cookies", h.handleCookies)
		r.Get("/v1/consent/export", h.handleExportHandle)
	})

	r.Get("/v1/consent/export/{handleID}", h.handleExportDownload)
}

func (h *ConsentHandler) identity(r *http.Request) identity.Identity {
	ctx := r.Context()
	return identity.New(
		middleware.GetUserID(ctx),
		middleware.GetSessionID(ctx),
		middleware.GetClientIP(ctx),
		middleware.GetUserAgent(ctx),
	)
}

func (h *ConsentHandler) handleConsentAction(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndPrepare[ConsentActionRequest](w, r, h.logger)
	if !ok {
		return
	}

	var (
		rec *models.Record
		err error
	)
	if req.Granted {
		rec, err = h.ledger.Grant(r.Context(), h.identity(r), req.Category, req.Source)
	} else {
		rec, err = h.ledger.Revoke(r.Context(), h.identity(r), req.Category, req.Source)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, RecordResponse{Record: rec})
}

func (h *ConsentHandler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndPrepare[PreferencesRequest](w, r, h.logger)
	if !ok {
		return
	}

	records, err := h.ledger.UpdatePreferences(r.Context(), h.identity(r), req.Preferences, req.Source)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, RecordsResponse{Records: records})
}

func (h *ConsentHandler) handleAcceptAll(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.ledger.AcceptAll)
}

func (h *ConsentHandler) handleRejectNonEssential(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.ledger.RejectNonEssential)
}

func (h *ConsentHandler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.ledger.RevokeAll)
}

func (h *ConsentHandler) bulk(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, identity.Identity, models.Source) ([]models.Record, error),
) {
	req, ok := shared.DecodeAndPrepare[BulkActionRequest](w, r, h.logger)
	if !ok {
		return
	}

	records, err := op(r.Context(), h.identity(r), req.Source)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, RecordsResponse{Records: records})
}

func (h *ConsentHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndPrepare[ConsentActionRequest](w, r, h.logger)
	if !ok {
		return
	}

	rec, err := h.ledger.Revoke(r.Context(), h.identity(r), req.Category, req.Source)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, RecordResponse{Record: rec})
}

// handleBannerDismissed marks the prompt as shown without recording any
// consent decision. The banner stays suppressed for this policy version.
func (h *ConsentHandler) handleBannerDismissed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.ledger.MarkPrompted(r.Context(), userID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsentHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	q := r.URL.Query()

	filter := &models.HistoryFilter{}
	if c := q.Get("category"); c != "" {
		cat := models.Category(c)
		if !cat.IsValid() {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown consent category: "+c))
			return
		}
		filter.Category = &cat
	}
	if from, ok := parseTimeParam(w, q.Get("from"), "from"); !ok {
		return
	} else if from != nil {
		filter.From = from
	}
	if to, ok := parseTimeParam(w, q.Get("to"), "to"); !ok {
		return
	} else if to != nil {
		filter.To = to
	}

	records, err := h.ledger.History(r.Context(), userID, filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	page := parseIntParam(q.Get("page"), 1)
	pageSize := parseIntParam(q.Get("pageSize"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(records)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	json.WriteJSON(w, http.StatusOK, HistoryResponse{
		Records:  records[start:end],
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

func (h *ConsentHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	state, err := h.ledger.Snapshot(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	statuses, err := h.visibility.Statuses(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, StatusResponse{
		PolicyVersion: h.ledger.PolicyVersion(),
		HasPrompted:   state.HasPrompted,
		LastUpdated:   state.LastUpdated,
		Statuses:      statuses,
		Preferences:   state.Preferences,
	})
}

func (h *ConsentHandler) handleRenewal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	state, err := h.ledger.Snapshot(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, h.gate.CheckRenewal(state, h.now()))
}

func (h *ConsentHandler) handleBanner(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	q := r.URL.Query()
	dismissed := q.Get("dismissed") == "true"
	force := q.Get("force") == "true"

	decision, err := h.visibility.Banner(r.Context(), userID, dismissed, force)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, decision)
}

func (h *ConsentHandler) handleCookies(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	active, err := h.visibility.ActiveCategories(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := CookiesResponse{ActiveCategories: active}

	if names := r.URL.Query()["name"]; len(names) > 0 {
		allowed, err := h.visibility.AllowedArtifacts(r.Context(), userID, names)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		resp.Allowed = allowed
	}
	json.WriteJSON(w, http.StatusOK, resp)
}

func (h *ConsentHandler) handleExportHandle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	handle, err := h.handles.Issue(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, ExportHandleResponse{
		ID:        handle.ID,
		Token:     handle.Token,
		ExpiresAt: handle.ExpiresAt,
	})
}

func (h *ConsentHandler) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	handleID := chi.URLParam(r, "handleID")
	token := r.URL.Query().Get("token")

	userID, err := h.handles.Redeem(r.Context(), handleID, token)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	doc, err := h.ledger.Export(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="consent-export.json"`)
	json.WriteJSON(w, http.StatusOK, doc)
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func parseTimeParam(w http.ResponseWriter, raw, name string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid "+name+" timestamp"))
		return nil, false
	}
	return &t, true
}
