package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/ledger/models"
)

type EmitterSuite struct {
	suite.Suite
	outbox  *Outbox
	emitter *Emitter
	now     time.Time
}

func (s *EmitterSuite) SetupTest() {
	s.outbox = NewOutbox(100, nil)
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.emitter = NewEmitter(s.outbox, WithClock(func() time.Time { return s.now }))
}

func TestEmitterSuite(t *testing.T) {
	suite.Run(t, new(EmitterSuite))
}

func (s *EmitterSuite) record(id string, age time.Duration) models.Record {
	return models.Record{
		ID:            id,
		Category:      models.CategoryAnalytics,
		Granted:       true,
		Timestamp:     s.now.Add(-age),
		PolicyVersion: "2.0",
		Source:        models.SourceBanner,
	}
}

func (s *EmitterSuite) TestEmitDerivesRetentionFromCategory() {
	s.emitter.Emit(context.Background(), Entry{
		EventType:       EventLoginAttempt,
		Category:        CategorySecurity,
		RetentionPeriod: "99y", // caller-supplied values are ignored
	})

	batch := s.outbox.Drain(10)
	s.Require().Len(batch, 1)
	s.Equal("7y", batch[0].RetentionPeriod)
	s.Equal(s.now, batch[0].Timestamp)
	s.Equal(SeverityLow, batch[0].Severity)
}

func (s *EmitterSuite) TestConsentActionEmittedOncePerRecord() {
	rec := s.record("rec-1", 0)

	s.emitter.ConsentGranted(context.Background(), "user-1", rec)
	s.emitter.ConsentGranted(context.Background(), "user-1", rec)

	batch := s.outbox.Drain(10)
	s.Require().Len(batch, 1)
	s.Equal(EventConsentGranted, batch[0].EventType)
	s.Equal(CategoryPrivacy, batch[0].Category)
	s.Equal("5y", batch[0].RetentionPeriod)
	s.Equal("rec-1", batch[0].Details["record_id"])
}

func (s *EmitterSuite) TestStaleRecordNotReEmitted() {
	// A record older than the dedup window is assumed already emitted by an
	// earlier observer of the same state change.
	rec := s.record("rec-old", 6*time.Second)

	s.emitter.ConsentRevoked(context.Background(), "user-1", rec)
	s.Empty(s.outbox.Drain(10))
}

func (s *EmitterSuite) TestFreshRecordWithinWindowEmits() {
	rec := s.record("rec-fresh", 4*time.Second)
	rec.Granted = false

	s.emitter.ConsentRevoked(context.Background(), "user-1", rec)
	batch := s.outbox.Drain(10)
	s.Require().Len(batch, 1)
	s.Equal(EventConsentRevoked, batch[0].EventType)
}

func (s *EmitterSuite) TestSeenSetPrunedAfterWindow() {
	rec := s.record("rec-2", 0)
	s.emitter.ConsentGranted(context.Background(), "u", rec)

	// Advance past the window; the seen set no longer pins the ID, but the
	// record itself is now stale so it still is not re-emitted.
	s.now = s.now.Add(10 * time.Second)
	s.emitter.ConsentGranted(context.Background(), "u", rec)

	s.Len(s.outbox.Drain(10), 1)
}

func (s *EmitterSuite) TestPolicyViewedMapsToCompliance() {
	s.emitter.PolicyViewed(context.Background(), "user-1", "privacy-policy", "2.0")

	batch := s.outbox.Drain(10)
	s.Require().Len(batch, 1)
	s.Equal(EventPolicyViewed, batch[0].EventType)
	s.Equal(CategoryCompliance, batch[0].Category)
	s.Equal("5y", batch[0].RetentionPeriod)
}
