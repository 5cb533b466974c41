package signals

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/audit"
)

type captureEmitter struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *captureEmitter) Emit(_ context.Context, entry audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureEmitter) snapshot() []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *captureEmitter) waitFor(t *testing.T, n int) []audit.Entry {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d entries", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type SignalsSuite struct {
	suite.Suite
	source     *ChannelSource
	emitter    *captureEmitter
	dispatcher *Dispatcher
}

func (s *SignalsSuite) SetupTest() {
	s.source = NewChannelSource(16)
	s.emitter = &captureEmitter{}
	s.dispatcher = NewDispatcher(s.source, s.emitter,
		WithDispatcherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestSignalsSuite(t *testing.T) {
	suite.Run(t, new(SignalsSuite))
}

func (s *SignalsSuite) TestDispatchMapsKindsToSecurityEntries() {
	ctx := context.Background()
	s.dispatcher.Start(ctx)

	s.True(s.source.Publish(Signal{Kind: KindAnomalousInput, UserID: "user-1", Route: "/checkout"}))
	s.True(s.source.Publish(Signal{Kind: KindLoginAttempt, UserID: "user-1"}))
	s.True(s.source.Publish(Signal{Kind: KindFormAccess, SessionID: "sess-1", Details: map[string]any{"field": "card_number"}}))

	entries := s.emitter.waitFor(s.T(), 3)
	s.source.Close()
	s.dispatcher.Wait()

	s.Equal(audit.EventAnomalousInput, entries[0].EventType)
	s.Equal(audit.CategorySecurity, entries[0].Category)
	s.Equal(audit.SeverityHigh, entries[0].Severity)
	s.Equal("/checkout", entries[0].Details["route"])

	s.Equal(audit.EventLoginAttempt, entries[1].EventType)
	s.Equal(audit.SeverityMedium, entries[1].Severity)

	s.Equal(audit.EventFormAccessed, entries[2].EventType)
	s.Equal(audit.SeverityLow, entries[2].Severity)
	s.Equal("card_number", entries[2].Details["field"])
	s.Equal("sess-1", entries[2].Details["session_id"])
}

func (s *SignalsSuite) TestUnknownKindIsDropped() {
	s.dispatcher.Start(context.Background())
	s.True(s.source.Publish(Signal{Kind: Kind("telemetry")}))
	s.True(s.source.Publish(Signal{Kind: KindLoginAttempt}))

	entries := s.emitter.waitFor(s.T(), 1)
	s.source.Close()
	s.dispatcher.Wait()

	s.Len(entries, 1)
	s.Equal(audit.EventLoginAttempt, entries[0].EventType)
}

func (s *SignalsSuite) TestPublishDropsWhenFull() {
	tiny := NewChannelSource(1)
	s.True(tiny.Publish(Signal{Kind: KindFormAccess}))
	s.False(tiny.Publish(Signal{Kind: KindFormAccess}))
}

func (s *SignalsSuite) TestDispatcherStopsOnContextCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	s.dispatcher.Start(ctx)
	cancel()
	s.dispatcher.Wait()
}
