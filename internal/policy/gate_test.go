package policy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/ledger/models"
)

type GateSuite struct {
	suite.Suite
	gate *Gate
	now  time.Time
}

func (s *GateSuite) SetupTest() {
	s.gate = NewGate("2.0")
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) decidedState(policyVersion string) *models.State {
	st := models.NewState(policyVersion)
	st.HasPrompted = true
	ts := s.now.Add(-time.Hour)
	st.LastUpdated = &ts
	return st
}

func (s *GateSuite) TestShouldPrompt() {
	s.Run("nil state prompts", func() {
		prompt, reason := s.gate.ShouldPrompt(nil, false)
		s.True(prompt)
		s.Equal(PromptReasonNeverPrompted, reason)
	})

	s.Run("never prompted prompts", func() {
		prompt, reason := s.gate.ShouldPrompt(models.NewState("2.0"), false)
		s.True(prompt)
		s.Equal(PromptReasonNeverPrompted, reason)
	})

	s.Run("stale policy version prompts again", func() {
		prompt, reason := s.gate.ShouldPrompt(s.decidedState("1.0"), false)
		s.True(prompt)
		s.Equal(PromptReasonPolicyChanged, reason)
	})

	s.Run("prompted but no recorded decision prompts", func() {
		st := models.NewState("2.0")
		st.HasPrompted = true
		prompt, reason := s.gate.ShouldPrompt(st, false)
		s.True(prompt)
		s.Equal(PromptReasonNoDecision, reason)
	})

	s.Run("current decision does not prompt", func() {
		prompt, reason := s.gate.ShouldPrompt(s.decidedState("2.0"), false)
		s.False(prompt)
		s.Equal(PromptReasonNone, reason)
	})

	s.Run("force overrides everything", func() {
		prompt, reason := s.gate.ShouldPrompt(s.decidedState("2.0"), true)
		s.True(prompt)
		s.Equal(PromptReasonForced, reason)
	})
}

func (s *GateSuite) grantAt(st *models.State, category models.Category, granted time.Time) {
	expiry := granted.AddDate(0, 12, 0)
	rec, err := models.NewRecord("rec-"+string(category), category, true, granted, st.PolicyVersion, models.SourceBanner, &expiry)
	s.Require().NoError(err)
	st.Records = append(st.Records, *rec)
	st.Preferences[category] = true
}

func (s *GateSuite) TestCheckRenewal() {
	s.Run("fresh grant is neither expired nor expiring", func() {
		st := s.decidedState("2.0")
		s.grantAt(st, models.CategoryAnalytics, s.now.Add(-time.Hour))

		report := s.gate.CheckRenewal(st, s.now)
		s.False(report.NeedsRenewal())
	})

	s.Run("grant inside the lookahead window is expiring", func() {
		st := s.decidedState("2.0")
		granted := s.now.AddDate(0, -12, 0).Add(10 * 24 * time.Hour)
		s.grantAt(st, models.CategoryAnalytics, granted)

		report := s.gate.CheckRenewal(st, s.now)
		s.Empty(report.Expired)
		s.Require().Len(report.Expiring, 1)
		s.Equal(models.CategoryAnalytics, report.Expiring[0].Category)
		s.Equal(10, report.Expiring[0].DaysRemaining)
	})

	s.Run("grant past expiry is expired", func() {
		st := s.decidedState("2.0")
		s.grantAt(st, models.CategoryMarketing, s.now.AddDate(0, -13, 0))

		report := s.gate.CheckRenewal(st, s.now)
		s.Equal([]models.Category{models.CategoryMarketing}, report.Expired)
		s.Empty(report.Expiring)
	})

	s.Run("revoked grant is excluded", func() {
		st := s.decidedState("2.0")
		granted := s.now.AddDate(0, -12, 0).Add(5 * 24 * time.Hour)
		s.grantAt(st, models.CategoryAnalytics, granted)
		rec, err := models.NewRecord("rec-revoke", models.CategoryAnalytics, false, s.now.Add(-time.Minute), "2.0", models.SourceSettings, nil)
		s.Require().NoError(err)
		st.Records = append(st.Records, *rec)
		st.Preferences[models.CategoryAnalytics] = false

		report := s.gate.CheckRenewal(st, s.now)
		s.False(report.NeedsRenewal())
	})

	s.Run("categories without grants are skipped", func() {
		report := s.gate.CheckRenewal(s.decidedState("2.0"), s.now)
		s.False(report.NeedsRenewal())
	})
}

// memorySource is a fixed snapshot source for checker tests.
type memorySource struct {
	states map[string]*models.State
}

func (m *memorySource) ActiveUserIDs() []string {
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}

func (m *memorySource) Snapshot(_ context.Context, userID string) (*models.State, error) {
	return m.states[userID], nil
}

type captureNotifier struct {
	mu    sync.Mutex
	calls []models.Category
}

func (n *captureNotifier) ConsentExpiring(_ context.Context, _ string, category models.Category, _ time.Time, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, category)
}

type CheckerSuite struct {
	suite.Suite
	now      time.Time
	gate     *Gate
	source   *memorySource
	notifier *captureNotifier
	checker  *Checker
}

func (s *CheckerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.gate = NewGate("2.0")
	s.source = &memorySource{states: make(map[string]*models.State)}
	s.notifier = &captureNotifier{}
	s.checker = NewChecker(s.gate, s.source, s.notifier,
		WithCheckerClock(func() time.Time { return s.now }),
	)
}

func TestCheckerSuite(t *testing.T) {
	suite.Run(t, new(CheckerSuite))
}

func (s *CheckerSuite) TestSweepNotifiesOncePerGrant() {
	st := models.NewState("2.0")
	st.HasPrompted = true
	granted := s.now.AddDate(0, -12, 0).Add(7 * 24 * time.Hour)
	expiry := granted.AddDate(0, 12, 0)
	rec, err := models.NewRecord("rec-1", models.CategoryAnalytics, true, granted, "2.0", models.SourceBanner, &expiry)
	s.Require().NoError(err)
	st.Records = append(st.Records, *rec)
	st.Preferences[models.CategoryAnalytics] = true
	s.source.states["user-1"] = st

	ctx := context.Background()
	s.checker.Sweep(ctx)
	s.Len(s.notifier.calls, 1)

	// Repeat sweeps stay silent for the same expiry.
	s.checker.Sweep(ctx)
	s.checker.Sweep(ctx)
	s.Len(s.notifier.calls, 1)

	// Renewal moves the expiry and re-arms the notification.
	renewedExpiry := s.now.AddDate(0, 12, 0)
	renewed, err := models.NewRecord("rec-2", models.CategoryAnalytics, true, s.now, "2.0", models.SourceSettings, &renewedExpiry)
	s.Require().NoError(err)
	st.Records = append(st.Records, *renewed)

	s.now = s.now.AddDate(0, 12, 0).Add(-5 * 24 * time.Hour)
	s.checker.Sweep(ctx)
	s.Len(s.notifier.calls, 2)
}

func (s *CheckerSuite) TestSweepIgnoresUsersOutsideWindow() {
	st := models.NewState("2.0")
	st.HasPrompted = true
	expiry := s.now.AddDate(0, 6, 0)
	rec, err := models.NewRecord("rec-1", models.CategoryMarketing, true, s.now.AddDate(0, -6, 0), "2.0", models.SourceBanner, &expiry)
	s.Require().NoError(err)
	st.Records = append(st.Records, *rec)
	st.Preferences[models.CategoryMarketing] = true
	s.source.states["user-1"] = st

	s.checker.Sweep(context.Background())
	s.Empty(s.notifier.calls)
}
