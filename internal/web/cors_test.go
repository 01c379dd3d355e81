package web

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func TestSanitizeOriginsNormalizesAndDeduplicates(t *testing.T) {
	logger := zaptest.NewLogger(t)

	sanitized, sanitizeErr := sanitizeOrigins(logger, []string{
		"  https://app.example.com  ",
		"HTTPS://app.example.com",
		"https://other.example.com/",
	})
	if sanitizeErr != nil {
		t.Fatalf("unexpected error: %v", sanitizeErr)
	}
	if len(sanitized) != 2 {
		t.Fatalf("expected 2 origins, got %v", sanitized)
	}
	for _, origin := range sanitized {
		if origin != "https://app.example.com" && origin != "https://other.example.com" {
			t.Fatalf("unexpected origin %q", origin)
		}
	}
}

func TestSanitizeOriginsRejectsWildcard(t *testing.T) {
	if _, sanitizeErr := sanitizeOrigins(zaptest.NewLogger(t), []string{"*"}); !errors.Is(sanitizeErr, errWildcardOrigin) {
		t.Fatalf("expected wildcard rejection, got %v", sanitizeErr)
	}
}

func TestSanitizeOriginsRejectsInvalidForms(t *testing.T) {
	invalidOrigins := [][]string{
		{"app.example.com"},
		{"https://app.example.com/path"},
		{"https://app.example.com?x=1"},
		{"ftp://app.example.com"},
	}
	for _, origins := range invalidOrigins {
		if _, sanitizeErr := sanitizeOrigins(zaptest.NewLogger(t), origins); !errors.Is(sanitizeErr, errInvalidOrigin) {
			t.Fatalf("expected invalid-origin rejection for %v, got %v", origins, sanitizeErr)
		}
	}
}

func TestSanitizeOriginsRequiresAtLeastOne(t *testing.T) {
	if _, sanitizeErr := sanitizeOrigins(zaptest.NewLogger(t), nil); !errors.Is(sanitizeErr, errEmptyAllowedOrigins) {
		t.Fatalf("expected empty rejection, got %v", sanitizeErr)
	}
	if _, sanitizeErr := sanitizeOrigins(zaptest.NewLogger(t), []string{"  ", ""}); !errors.Is(sanitizeErr, errEmptyAllowedOrigins) {
		t.Fatalf("expected empty rejection for blank entries, got %v", sanitizeErr)
	}
}

func TestConfigureCORSSetsResponseHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	middleware, corsErr := ConfigureCORS(zaptest.NewLogger(t), []string{"https://app.example.com"})
	if corsErr != nil {
		t.Fatalf("unexpected error: %v", corsErr)
	}

	router := gin.New()
	router.Use(middleware)
	router.POST("/firebase-auth/sign-in-with-google", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"ok": true})
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/firebase-auth/sign-in-with-google", nil)
	request.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if allowed := recorder.Header().Get("Access-Control-Allow-Origin"); allowed != "https://app.example.com" {
		t.Fatalf("expected allow-origin header, got %q", allowed)
	}

	preflightRecorder := httptest.NewRecorder()
	preflight := httptest.NewRequest(http.MethodOptions, "/firebase-auth/sign-in-with-google", nil)
	preflight.Header.Set("Origin", "https://app.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(preflightRecorder, preflight)
	if preflightRecorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", preflightRecorder.Code)
	}
}

func TestConfigureCORSRejectsDisallowedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	middleware, corsErr := ConfigureCORS(zaptest.NewLogger(t), []string{"https://app.example.com"})
	if corsErr != nil {
		t.Fatalf("unexpected error: %v", corsErr)
	}

	router := gin.New()
	router.Use(middleware)
	router.POST("/firebase-auth/sign-in-with-google", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"ok": true})
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/firebase-auth/sign-in-with-google", nil)
	request.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed origin, got %d", recorder.Code)
	}
}
