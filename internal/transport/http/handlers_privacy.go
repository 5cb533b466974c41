package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"assent/internal/platform/middleware"
	"assent/internal/signals"
	"assent/internal/transport/http/shared"
	dErrors "assent/pkg/domain-errors"
)

// PolicyAuditor records policy-document views.
type PolicyAuditor interface {
	PolicyViewed(ctx context.Context, userID, document, version string)
}

// SignalPublisher accepts host-reported security signals.
type SignalPublisher interface {
	Publish(sig signals.Signal) bool
}

// PrivacyHandler exposes the audit-only endpoints: policy view recording
// and the security signal intake.
type PrivacyHandler struct {
	logger  *slog.Logger
	auditor PolicyAuditor
	source  SignalPublisher
}

// NewPrivacyHandler creates the privacy HTTP handler.
func NewPrivacyHandler(logger *slog.Logger, auditor PolicyAuditor, source SignalPublisher) *PrivacyHandler {
	return &PrivacyHandler{
		logger:  logger,
		auditor: auditor,
		source:  source,
	}
}

// Register mounts the privacy routes inside the authenticated group.
func (h *PrivacyHandler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/v1/privacy/policy-view", h.handlePolicyView)
		r.Post("/v1/signals", h.handleSignal)
	})
}

func (h *PrivacyHandler) handlePolicyView(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndPrepare[PolicyViewRequest](w, r, h.logger)
	if !ok {
		return
	}

	h.auditor.PolicyViewed(r.Context(), middleware.GetUserID(r.Context()), req.Document, req.Version)
	w.WriteHeader(http.StatusAccepted)
}

func (h *PrivacyHandler) handleSignal(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndPrepare[SignalRequest](w, r, h.logger)
	if !ok {
		return
	}

	ctx := r.Context()
	accepted := h.source.Publish(signals.Signal{
		Kind:      req.Kind,
		UserID:    middleware.GetUserID(ctx),
		SessionID: middleware.GetSessionID(ctx),
		Route:     req.Route,
		Details:   req.Details,
	})
	if !accepted {
		// Intake is best-effort; a full buffer sheds load instead of blocking.
		h.logger.WarnContext(ctx, "signal buffer full, dropping signal",
			"kind", string(req.Kind),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeConflict, "signal intake saturated"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
