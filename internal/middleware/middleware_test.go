package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubVerifier struct {
	uid string
	err error
	got string
}

func (v *stubVerifier) Verify(_ context.Context, idToken string) (string, error) {
	v.got = idToken
	return v.uid, v.err
}

func newAuthRouter(v *stubVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(v))
	r.GET("/who", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(UserIDKey))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   *stubVerifier
		wantStatus int
		wantBody   string
	}{
		{name: "missing header", header: "", verifier: &stubVerifier{uid: "u1"}, wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", verifier: &stubVerifier{uid: "u1"}, wantStatus: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer bad", verifier: &stubVerifier{err: errors.New("nope")}, wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", verifier: &stubVerifier{uid: "u1"}, wantStatus: http.StatusOK, wantBody: "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(tt.verifier)
			req := httptest.NewRequest(http.MethodGet, "/who", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthMiddlewarePassesRawToken(t *testing.T) {
	v := &stubVerifier{uid: "u1"}
	r := newAuthRouter(v)
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if v.got != "abc.def.ghi" {
		t.Errorf("verifier got %q", v.got)
	}
}

func TestRedactBody(t *testing.T) {
	got := RedactBody([]byte(`{"canvasUrl":"https://canvas.test","apiToken":"secret-token"}`))
	if strings.Contains(got, "secret-token") {
		t.Fatalf("token leaked: %s", got)
	}
	if !strings.Contains(got, "canvas.test") {
		t.Errorf("other fields dropped: %s", got)
	}

	if got := RedactBody([]byte("not json")); got != "not json" {
		t.Errorf("non-json body = %q", got)
	}
	if got := RedactBody(nil); got != "" {
		t.Errorf("empty body = %q", got)
	}
}

func TestRequestLoggerKeepsBodyReadable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		b, _ := c.GetRawData()
		c.String(http.StatusOK, string(b))
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`)))
	if rec.Body.String() != `{"a":1}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestSecurityHeadersAndMethodFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(), MethodFilter())
	r.Any("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("GET status = %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q", rec.Header().Get("X-Frame-Options"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", rec.Header().Get("X-Content-Type-Options"))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("TRACE", "/x", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("TRACE status = %d", rec.Code)
	}
}
