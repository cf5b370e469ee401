package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rewards-ledger/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func TestKeyBySubjectAndParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	var keys []string
	r.GET("/promotions/:id", func(c *gin.Context) {
		keys = append(keys, KeyBySubjectAndParam("id")(c))
		c.Set(shared.SubjectContextKey, "desktop")
		keys = append(keys, KeyBySubjectAndParam("id")(c))
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/promotions/p1", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	r.ServeHTTP(httptest.NewRecorder(), req)

	if len(keys) != 2 || keys[0] != "1.2.3.4|p1" || keys[1] != "desktop|p1" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRateLimitMiddlewareDisabledRule(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if !strings.Contains(w.Body.String(), `"ok":true`) {
			t.Fatalf("expected handler response body, got %s", w.Body.String())
		}
	}
}

func TestRateLimitMiddlewareLocalFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{Prefix: "test", WindowSeconds: 60, MaxRequests: 2}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if !strings.Contains(w.Body.String(), `"ok":true`) {
			t.Fatalf("request %d should pass, got %s", i, w.Body.String())
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if code := decodeStatusCode(t, w); code != 429 {
		t.Fatalf("status_code want 429 got %d", code)
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  int64
		ok    bool
	}{
		{name: "int64", input: int64(10), want: 10, ok: true},
		{name: "int", input: int(11), want: 11, ok: true},
		{name: "uint8", input: uint8(12), want: 12, ok: true},
		{name: "float64", input: float64(13.9), want: 13, ok: true},
		{name: "string", input: "bad", want: 0, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toInt64(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok want %v got %v", tc.ok, ok)
			}
			if got != tc.want {
				t.Fatalf("value want %d got %d", tc.want, got)
			}
		})
	}
}
