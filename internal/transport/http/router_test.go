package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	leadhandler "leadtriage/internal/leads/handler"
	"leadtriage/internal/leads/intake"
	"leadtriage/internal/leads/service"
	"leadtriage/internal/leads/store"
	"leadtriage/internal/platform/metrics"
	"leadtriage/internal/ratelimit"
	ratelimitmw "leadtriage/internal/ratelimit/middleware"
	"leadtriage/internal/resume"
	"leadtriage/internal/staff"
	staffhandler "leadtriage/internal/staff/handler"
	"leadtriage/pkg/testutil"
)

// =============================================================================
// Router Test Suite
// =============================================================================
// Drives the assembled router with real services over the in-memory store:
// public intake, staff login, and the review workflow behind the session.

const (
	staffEmail    = "staff@example.com"
	staffPassword = "s3cret-pass"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type failingHealth struct{}

func (failingHealth) Health(context.Context) error { return errors.New("connection refused") }

type RouterSuite struct {
	suite.Suite
	router http.Handler
	leads  *service.Service
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func newRouter(t *testing.T, ratePerMinute, burst int, health HealthChecker) (http.Handler, *service.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	leads := service.New(store.NewInMemory(), intake.NewValidator(intake.DefaultReferenceData()), service.WithLogger(logger))
	resumes, err := resume.NewStorage(filepath.Join(t.TempDir(), "resumes"), 0)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(staffPassword), bcrypt.MinCost)
	require.NoError(t, err)
	tokens := staff.NewTokenService("router-test-key", time.Hour)
	staffSvc := staff.NewService(staff.NewCredentials(map[string]string{staffEmail: string(hash)}), tokens, logger)

	if health == nil {
		health = leads
	}
	limiter := ratelimitmw.New(ratelimit.NewIPLimiter(ratePerMinute, burst), logger)
	router := NewRouter(Deps{
		Logger:    logger,
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Health:    health,
		Sessions:  tokens,
		RateLimit: limiter.RateLimit(),
		Leads:     leadhandler.New(leads, resumes, logger),
		Staff:     staffhandler.New(staffSvc, logger),
		Resumes:   resume.NewHandler(resumes, logger),
	})
	return router, leads
}

func (s *RouterSuite) SetupTest() {
	s.router, s.leads = newRouter(s.T(), 60, 100, nil)
}

func (s *RouterSuite) login() string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/staff/sessions",
		map[string]string{"email": staffEmail, "password": staffPassword}))
	s.Require().Equal(http.StatusCreated, rr.Code)
	return testutil.UnmarshalResponse[staffhandler.SessionResponse](s.T(), rr).Token
}

func (s *RouterSuite) authed(req *http.Request, token string) *http.Request {
	return testutil.WithBearer(req, token)
}

func anaMultipart(t *testing.T) *http.Request {
	t.Helper()
	fields := map[string][]string{
		"firstName":            {"Ana"},
		"lastName":             {"Lee"},
		"email":                {"ana@x.com"},
		"linkedinProfile":      {"https://linkedin.com/in/ana"},
		"countryOfCitizenship": {"US"},
		"visasOfInterest":      {`["H1B"]`},
	}
	return testutil.NewMultipartRequest(t, http.MethodPost, "/leads", fields,
		testutil.FormFile{Field: "resume", Filename: "ana.pdf", Content: samplePDF})
}

func (s *RouterSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")
	s.NotEmpty(rr.Header().Get("X-Request-ID"))

	unhealthy, _ := newRouter(s.T(), 60, 100, failingHealth{})
	rr = testutil.DoRequest(unhealthy, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
}

func (s *RouterSuite) TestReferenceIsPublic() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/reference"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONHasKey(s.T(), rr, "countries")
}

func (s *RouterSuite) TestReviewRequiresSession() {
	for _, req := range []*http.Request{
		testutil.NewRequest(s.T(), http.MethodGet, "/leads"),
		testutil.NewRequest(s.T(), http.MethodGet, "/leads/abc"),
		testutil.NewRequestWithBody(s.T(), http.MethodPatch, "/leads/abc", `{"status":"REACHED_OUT"}`),
		testutil.NewRequest(s.T(), http.MethodPost, "/leads/abc/reached-out"),
		testutil.NewRequest(s.T(), http.MethodGet, "/resumes/whatever.pdf"),
	} {
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	}

	rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/leads"), "not-a-token"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
}

func (s *RouterSuite) TestIntakeToReachedOut() {
	token := s.login()
	var leadID, resumeURL string

	testutil.Given(s.T(), "Ana submits the intake form with a resume", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, anaMultipart(t))

		testutil.Then(t, "a pending lead is created", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusCreated)
			lead := testutil.UnmarshalResponse[leadhandler.LeadResponse](t, rr)
			assert.Equal(t, "PENDING", lead.Status)
			assert.Equal(t, []string{"H1B"}, lead.VisasOfInterest)
			assert.True(t, strings.HasPrefix(lead.ResumeURL, "/resumes/"))
			assert.False(t, lead.SubmittedAt.IsZero())
			leadID, resumeURL = lead.ID, lead.ResumeURL
		})
	})
	s.Require().NotEmpty(leadID)

	testutil.When(s.T(), "staff list leads", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(t, http.MethodGet, "/leads"), token))
		testutil.AssertStatusOK(t, rr)
		leads := testutil.UnmarshalResponse[[]leadhandler.LeadResponse](t, rr)
		require.Len(t, *leads, 1)
		assert.Equal(t, leadID, (*leads)[0].ID)
	})

	testutil.When(s.T(), "staff open the resume", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(t, http.MethodGet, resumeURL), token))
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
		assert.Equal(t, samplePDF, rr.Body.Bytes())
	})

	testutil.When(s.T(), "staff mark the lead reached out", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(t, http.MethodPost, "/leads/"+leadID+"/reached-out"), token))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "REACHED_OUT")
	})

	testutil.Then(s.T(), "the lead cannot go back to pending", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, s.authed(
			testutil.NewRequestWithBody(t, http.MethodPatch, "/leads/"+leadID, `{"status":"PENDING"}`), token))
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})

	testutil.And(s.T(), "the pending filter no longer matches", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(t, http.MethodGet, "/leads?status=pending"), token))
		testutil.AssertStatusOK(t, rr)
		assert.JSONEq(t, "[]", rr.Body.String())
	})

	testutil.Then(s.T(), "updating an unknown id is not found", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, s.authed(
			testutil.NewRequestWithBody(t, http.MethodPatch, "/leads/zzz", `{"status":"REACHED_OUT"}`), token))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found", "Lead not found")
	})
}

func (s *RouterSuite) TestInvalidSubmissionReportsFields() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/leads", map[string]any{
		"firstName": "A",
		"email":     "not-an-email",
	}))

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	resp := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal("validation_error", resp.Code)
	for _, field := range []string{"firstName", "lastName", "email", "linkedinProfile", "countryOfCitizenship", "visasOfInterest", "resume"} {
		s.Contains(resp.Fields, field)
	}
}

func (s *RouterSuite) TestRefusedResumeKeepsFieldErrors() {
	fields := map[string][]string{
		"firstName":       {"A"},
		"lastName":        {"L"},
		"email":           {"not-an-email"},
		"visasOfInterest": {"[]"},
	}
	cases := []struct {
		name    string
		content []byte
		message string
	}{
		{"empty file", []byte{}, "Resume is required"},
		{"image", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "Resume must be a PDF, DOC, DOCX or TXT file"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := testutil.NewMultipartRequest(s.T(), http.MethodPost, "/leads", fields,
				testutil.FormFile{Field: "resume", Filename: "cv.pdf", Content: tc.content})

			rr := testutil.DoRequest(s.router, req)

			testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
			resp := testutil.UnmarshalErrorResponse(s.T(), rr)
			s.Equal("validation_error", resp.Code)
			s.Equal(tc.message, resp.Fields["resume"])
			for _, field := range []string{"firstName", "lastName", "email", "linkedinProfile", "countryOfCitizenship", "visasOfInterest"} {
				s.Contains(resp.Fields, field)
			}
		})
	}

	list := testutil.DoRequest(s.router, s.authed(testutil.NewRequest(s.T(), http.MethodGet, "/leads"), s.login()))
	testutil.AssertStatusOK(s.T(), list)
	s.JSONEq("[]", list.Body.String())
}

func (s *RouterSuite) TestMetricsEndpoint() {
	testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/reference"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))

	testutil.AssertStatusOK(s.T(), rr)
	s.Contains(rr.Body.String(), `leadtriage_http_request_duration_seconds_count{method="GET",route="/reference",status="200"} 1`)
}

func TestIntakeRateLimit(t *testing.T) {
	router, _ := newRouter(t, 1, 2, nil)

	for range 2 {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/leads", map[string]any{}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	}
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/leads", map[string]any{}))
	testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	reference := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/reference"))
	testutil.AssertStatusOK(t, reference)
}

func TestIntakeRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	router, _ := newRouter(t, 1, 1, nil)

	codes := make([]int, 0, 5)
	for i := range 5 {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/leads", map[string]any{})
		req.RemoteAddr = "198.51.100.9:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		codes = append(codes, testutil.DoRequest(router, req).Code)
	}

	assert.Equal(t, []int{
		http.StatusBadRequest,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, codes)
}
