package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/jwtauth"
	"assent/internal/ledger"
	"assent/internal/ledger/models"
	"assent/internal/ledger/store"
	"assent/internal/platform/health"
	"assent/internal/policy"
	"assent/internal/signals"
	"assent/internal/visibility"
)

type HandlersSuite struct {
	suite.Suite
	now     time.Time
	ledger  *ledger.Ledger
	handles *ledger.HandleRegistry
	source  *signals.ChannelSource
	tokens  *jwtauth.Service
	server  *httptest.Server
	token   string
}

func (s *HandlersSuite) SetupTest() {
	s.now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return s.now }

	s.ledger = ledger.New(store.NewInMemory(), "2.0",
		ledger.WithLogger(logger),
		ledger.WithClock(clock),
	)
	s.handles = ledger.NewHandleRegistry(ledger.WithHandleClock(clock))
	s.source = signals.NewChannelSource(16)
	s.tokens = jwtauth.New("test-key", "https://assent.test", "booking-frontend", time.Hour,
		jwtauth.WithClock(clock),
	)

	gate := policy.NewGate("2.0")
	controller := visibility.NewController(gate, s.ledger)
	consent := NewConsentHandler(logger, s.ledger, gate, controller, s.handles,
		WithHandlerClock(clock),
	)
	privacy := NewPrivacyHandler(logger, noopPolicyAuditor{}, s.source)

	router := NewRouter(logger, consent, privacy, health.New("test"), s.tokens, nil)
	s.server = httptest.NewServer(router)

	token, err := s.tokens.Generate("user-1", "sess-1")
	s.Require().NoError(err)
	s.token = token
}

func (s *HandlersSuite) TearDownTest() {
	s.server.Close()
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

type noopPolicyAuditor struct{}

func (noopPolicyAuditor) PolicyViewed(context.Context, string, string, string) {}

func (s *HandlersSuite) request(method, path string, body any, authed bool) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlersSuite) decode(resp *http.Response, target any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(target))
}

func (s *HandlersSuite) TestUnauthenticatedRequestsRejected() {
	resp := s.request(http.MethodGet, "/v1/consent/status", nil, false)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlersSuite) TestGrantAndStatusRoundTrip() {
	resp := s.request(http.MethodPost, "/v1/consent",
		ConsentActionRequest{Category: models.CategoryAnalytics, Granted: true, Source: models.SourceBanner}, true)
	s.Equal(http.StatusOK, resp.StatusCode)

	var action RecordResponse
	s.decode(resp, &action)
	s.Require().NotNil(action.Record)
	s.Equal(models.CategoryAnalytics, action.Record.Category)
	s.True(action.Record.Granted)

	resp = s.request(http.MethodGet, "/v1/consent/status", nil, true)
	s.Equal(http.StatusOK, resp.StatusCode)

	var status StatusResponse
	s.decode(resp, &status)
	s.Equal("2.0", status.PolicyVersion)
	s.True(status.Preferences[models.CategoryAnalytics])
	s.True(status.Preferences[models.CategoryEssential])
	s.Len(status.Statuses, len(models.AllCategories))
}

func (s *HandlersSuite) TestUnknownCategoryRejected() {
	resp := s.request(http.MethodPost, "/v1/consent",
		map[string]any{"category": "tracking", "granted": true, "source": "banner"}, true)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestAcceptAllAndHistoryPagination() {
	resp := s.request(http.MethodPost, "/v1/consent/accept-all",
		BulkActionRequest{Source: models.SourceBanner}, true)
	s.Equal(http.StatusOK, resp.StatusCode)

	var bulk RecordsResponse
	s.decode(resp, &bulk)
	s.Len(bulk.Records, len(models.AllCategories)-1)

	resp = s.request(http.MethodGet, "/v1/consent/history?page=1&pageSize=2", nil, true)
	s.Equal(http.StatusOK, resp.StatusCode)

	var page HistoryResponse
	s.decode(resp, &page)
	s.Len(page.Records, 2)
	s.Equal(len(models.AllCategories)-1, page.Total)
	s.Equal(2, page.PageSize)
}

func (s *HandlersSuite) TestHistoryCategoryFilter() {
	resp := s.request(http.MethodPost, "/v1/consent",
		ConsentActionRequest{Category: models.CategoryMarketing, Granted: true, Source: models.SourceForm}, true)
	resp.Body.Close()

	resp = s.request(http.MethodGet, "/v1/consent/history?category=marketing", nil, true)
	var page HistoryResponse
	s.decode(resp, &page)
	s.Require().Len(page.Records, 1)
	s.Equal(models.CategoryMarketing, page.Records[0].Category)

	resp = s.request(http.MethodGet, "/v1/consent/history?category=bogus", nil, true)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestBannerLifecycle() {
	resp := s.request(http.MethodGet, "/v1/consent/banner", nil, true)
	var decision visibility.BannerDecision
	s.decode(resp, &decision)
	s.True(decision.Show)

	resp = s.request(http.MethodPost, "/v1/consent/banner-dismissed", nil, true)
	resp.Body.Close()
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp = s.request(http.MethodPost, "/v1/consent/reject-non-essential",
		BulkActionRequest{Source: models.SourceBanner}, true)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.request(http.MethodGet, "/v1/consent/banner", nil, true)
	s.decode(resp, &decision)
	s.False(decision.Show)
}

func (s *HandlersSuite) TestRenewalEndpoint() {
	resp := s.request(http.MethodPost, "/v1/consent",
		ConsentActionRequest{Category: models.CategoryAnalytics, Granted: true, Source: models.SourceBanner}, true)
	resp.Body.Close()

	s.now = s.now.AddDate(0, 12, 0).Add(-10 * 24 * time.Hour)
	resp = s.request(http.MethodGet, "/v1/consent/renewal", nil, true)
	s.Equal(http.StatusOK, resp.StatusCode)

	var report policy.RenewalReport
	s.decode(resp, &report)
	s.Require().Len(report.Expiring, 1)
	s.Equal(models.CategoryAnalytics, report.Expiring[0].Category)
	s.Equal(10, report.Expiring[0].DaysRemaining)
}

func (s *HandlersSuite) TestExportHandleFlow() {
	resp := s.request(http.MethodPost, "/v1/consent/accept-all",
		BulkActionRequest{Source: models.SourceBanner}, true)
	resp.Body.Close()

	resp = s.request(http.MethodGet, "/v1/consent/export", nil, true)
	s.Equal(http.StatusOK, resp.StatusCode)

	var handle ExportHandleResponse
	s.decode(resp, &handle)
	s.NotEmpty(handle.Token)

	resp = s.request(http.MethodGet, "/v1/consent/export/"+handle.ID+"?token="+handle.Token, nil, false)
	s.Equal(http.StatusOK, resp.StatusCode)

	var doc ledger.ExportDocument
	s.decode(resp, &doc)
	s.Equal("user-1", doc.UserID)
	s.Len(doc.Records, len(models.AllCategories)-1)

	// Handle is single-use.
	resp = s.request(http.MethodGet, "/v1/consent/export/"+handle.ID+"?token="+handle.Token, nil, false)
	resp.Body.Close()
	s.Equal(http.StatusGone, resp.StatusCode)
}

func (s *HandlersSuite) TestCookiesEndpoint() {
	resp := s.request(http.MethodPost, "/v1/consent",
		ConsentActionRequest{Category: models.CategoryAnalytics, Granted: true, Source: models.SourceSettings}, true)
	resp.Body.Close()

	resp = s.request(http.MethodGet, "/v1/consent/cookies?name=_ga&name=_fbp&name=session_token", nil, true)
	s.Equal(http.StatusOK, resp.StatusCode)

	var cookies CookiesResponse
	s.decode(resp, &cookies)
	s.Contains(cookies.ActiveCategories, models.CategoryAnalytics)
	s.Equal([]string{"_ga", "session_token"}, cookies.Allowed)
}

func (s *HandlersSuite) TestSignalIntake() {
	resp := s.request(http.MethodPost, "/v1/signals",
		SignalRequest{Kind: signals.KindAnomalousInput, Route: "/checkout"}, true)
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	select {
	case sig := <-s.source.Signals():
		s.Equal(signals.KindAnomalousInput, sig.Kind)
		s.Equal("user-1", sig.UserID)
		s.Equal("/checkout", sig.Route)
	case <-time.After(time.Second):
		s.Fail("signal not forwarded to source")
	}

	resp = s.request(http.MethodPost, "/v1/signals",
		SignalRequest{Kind: signals.Kind("telemetry")}, true)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestPolicyViewEndpoint() {
	resp := s.request(http.MethodPost, "/v1/privacy/policy-view",
		PolicyViewRequest{Document: "privacy-policy", Version: "2.0"}, true)
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	resp = s.request(http.MethodPost, "/v1/privacy/policy-view",
		PolicyViewRequest{Version: "2.0"}, true)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersSuite) TestHealthAndMetricsExposed() {
	resp, err := http.Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
