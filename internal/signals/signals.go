// Package signals turns host-reported security observations into audit
// entries. Sources are explicit and injectable; nothing here intercepts
// runtime behavior on its own.
package signals

import (
	"context"
	"log/slog"

	"assent/internal/audit"
)

// Kind identifies a class of security observation.
type Kind string

const (
	KindFormAccess        Kind = "form_access"
	KindSensitivePageView Kind = "sensitive_page_view"
	KindAnomalousInput    Kind = "anomalous_input"
	KindLoginAttempt      Kind = "login_attempt"
)

// ValidKinds is the closed set of accepted signal kinds.
var ValidKinds = map[Kind]bool{
	KindFormAccess:        true,
	KindSensitivePageView: true,
	KindAnomalousInput:    true,
	KindLoginAttempt:      true,
}

// IsValid reports whether the kind is recognized.
func (k Kind) IsValid() bool {
	return ValidKinds[k]
}

// Signal is one security observation reported by the host environment.
type Signal struct {
	Kind      Kind           `json:"kind"`
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Route     string         `json:"route,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Source is a stream of signals fed by the host environment.
type Source interface {
	Signals() <-chan Signal
}

// ChannelSource is a buffered in-process Source. The HTTP intake and any
// in-process detectors publish into it.
type ChannelSource struct {
	ch chan Signal
}

// NewChannelSource creates a source with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSource{ch: make(chan Signal, buffer)}
}

// Signals returns the stream side of the source.
func (s *ChannelSource) Signals() <-chan Signal {
	return s.ch
}

// Publish offers a signal without blocking. It reports false when the
// buffer is full and the signal was dropped.
func (s *ChannelSource) Publish(sig Signal) bool {
	select {
	case s.ch <- sig:
		return true
	default:
		return false
	}
}

// Close ends the stream. Publish must not be called afterwards.
func (s *ChannelSource) Close() {
	close(s.ch)
}

// Emitter is the audit surface the dispatcher writes to.
type Emitter interface {
	Emit(ctx context.Context, entry audit.Entry)
}

// Dispatcher subscribes to a signal source and converts each signal into
// a security audit entry.
type Dispatcher struct {
	source  Source
	emitter Emitter
	logger  *slog.Logger
	done    chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher. Call Start to begin consuming.
func NewDispatcher(source Source, emitter Emitter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		source:  source,
		emitter: emitter,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start consumes the source until it closes or the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-d.source.Signals():
			if !ok {
				return
			}
			d.dispatch(ctx, sig)
		}
	}
}

// Wait blocks until the dispatcher has stopped.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) dispatch(ctx context.Context, sig Signal) {
	if !sig.Kind.IsValid() {
		d.logger.WarnContext(ctx, "dropping signal of unknown kind",
			slog.String("kind", string(sig.Kind)))
		return
	}
	eventType, severity := classify(sig.Kind)

	details := make(map[string]any, len(sig.Details)+2)
	for k, v := range sig.Details {
		details[k] = v
	}
	if sig.Route != "" {
		details["route"] = sig.Route
	}
	if sig.SessionID != "" {
		details["session_id"] = sig.SessionID
	}

	d.emitter.Emit(ctx, audit.Entry{
		EventType:   eventType,
		Category:    audit.CategorySecurity,
		Severity:    severity,
		Description: "security signal: " + string(sig.Kind),
		ActorID:     sig.UserID,
		Details:     details,
	})
}

func classify(kind Kind) (string, audit.Severity) {
	switch kind {
	case KindAnomalousInput:
		return audit.EventAnomalousInput, audit.SeverityHigh
	case KindLoginAttempt:
		return audit.EventLoginAttempt, audit.SeverityMedium
	case KindSensitivePageView:
		return audit.EventSensitivePageView, audit.SeverityMedium
	default:
		return audit.EventFormAccessed, audit.SeverityLow
	}
}
