package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/psaab/swsh/pkg/logging"
)

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

type fakeStatus struct{}

func (fakeStatus) SyntaxVersion() string { return "v1" }
func (fakeStatus) Release() string       { return "1.2.3" }
func (fakeStatus) Sessions() int         { return 2 }
func (fakeStatus) AuditRecords() int     { return 7 }

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.StatementDone("ok")
	m.StatementDone("ok")
	m.StatementDone("syntax")
	m.CompletionDone(false)
	m.CompletionDone(true)
	m.ProviderFailed("ntp")

	if got := testutil.ToFloat64(m.statements.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok statements = %v", got)
	}
	if got := testutil.ToFloat64(m.statements.WithLabelValues("syntax")); got != 1 {
		t.Errorf("syntax statements = %v", got)
	}
	if got := testutil.ToFloat64(m.completions); got != 2 {
		t.Errorf("completions = %v", got)
	}
	if got := testutil.ToFloat64(m.completionHits); got != 1 {
		t.Errorf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(m.providerFailures.WithLabelValues("ntp")); got != 1 {
		t.Errorf("provider failures = %v", got)
	}
}

func TestStatusCollector(t *testing.T) {
	c := newStatusCollector(fakeStatus{})
	want := `
# HELP swsh_sessions_active Open shell sessions.
# TYPE swsh_sessions_active gauge
swsh_sessions_active 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "swsh_sessions_active"); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(c); n != 3 {
		t.Errorf("collected %d metrics, want 3", n)
	}
}

func TestServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg).StatementDone("ok")
	buf := logging.NewBuffer(10)
	buf.Add(logging.Record{Session: "s1", Line: "show version", Result: "ok"})
	buf.Add(logging.Record{Session: "s1", Line: "bogus", Result: "unknown"})
	srv := NewServer(Config{Registry: reg, Status: fakeStatus{}, Audit: buf})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `swsh_statements_total{result="ok"} 1`) {
		t.Errorf("/metrics: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/status", nil))
	var st struct {
		Success bool           `json:"success"`
		Data    StatusResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Success || st.Data.Syntax != "v1" || st.Data.Sessions != 2 {
		t.Errorf("status = %+v", st)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/audit?result=unknown", nil))
	var au struct {
		Data []AuditEntry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &au); err != nil {
		t.Fatal(err)
	}
	if len(au.Data) != 1 || au.Data[0].Line != "bogus" {
		t.Errorf("audit = %+v", au.Data)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/audit?count=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("count=0: %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := AuthConfig{
		CheckUser: func(u, p string) bool { return u == "admin" && p == "secret123" },
		APIKeys:   map[string]bool{"tok-abc-123": true},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authMiddleware(cfg, ok)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{name: "health bypass", path: "/health", want: http.StatusOK},
		{name: "metrics bypass", path: "/metrics", want: http.StatusOK},
		{name: "no auth", path: "/api/v1/status", want: http.StatusUnauthorized},
		{
			name:   "valid basic auth",
			path:   "/api/v1/status",
			header: map[string]string{"Authorization": basicAuth("admin", "secret123")},
			want:   http.StatusOK,
		},
		{
			name:   "invalid basic auth password",
			path:   "/api/v1/status",
			header: map[string]string{"Authorization": basicAuth("admin", "wrong")},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "bearer token",
			path:   "/api/v1/audit",
			header: map[string]string{"Authorization": "Bearer tok-abc-123"},
			want:   http.StatusOK,
		},
		{
			name:   "api key header",
			path:   "/api/v1/audit",
			header: map[string]string{"X-API-Key": "tok-abc-123"},
			want:   http.StatusOK,
		},
		{
			name:   "bad api key",
			path:   "/api/v1/audit",
			header: map[string]string{"X-API-Key": "nope"},
			want:   http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
