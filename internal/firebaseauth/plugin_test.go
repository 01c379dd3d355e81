package firebaseauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeVerifier resolves tokens against a fixed map and records calls.
type fakeVerifier struct {
	claimsByToken map[string]DecodedClaims
	verifyErr     error
	calls         int
}

func (verifier *fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*DecodedClaims, error) {
	verifier.calls++
	if verifier.verifyErr != nil {
		return nil, verifier.verifyErr
	}
	claims, ok := verifier.claimsByToken[idToken]
	if !ok {
		return nil, errors.New("token not recognized")
	}
	return &claims, nil
}

func newTestPlugin(t *testing.T, configuration Config, verifier AdminTokenVerifier, store Store) *Plugin {
	t.Helper()
	plugin, pluginErr := NewPlugin(configuration, verifier, store, zaptest.NewLogger(t), nil)
	if pluginErr != nil {
		t.Fatalf("plugin construction error: %v", pluginErr)
	}
	return plugin
}

func googleClaims() map[string]DecodedClaims {
	return map[string]DecodedClaims{
		"valid-token": {
			SubjectID:     "google-sub",
			Email:         "user@example.com",
			Name:          "Test User",
			PictureURL:    "https://example.com/u.png",
			EmailVerified: true,
			ExpiresAt:     time.Now().UTC().Add(time.Hour),
		},
	}
}

func TestNewPluginRejectsOverrideWithoutClientConfig(t *testing.T) {
	configuration := DefaultConfig()
	configuration.OverrideEmailPasswordFlow = true

	_, pluginErr := NewPlugin(configuration, &fakeVerifier{}, NewMemoryStore(), zaptest.NewLogger(t), nil)
	if pluginErr == nil {
		t.Fatalf("expected construction to fail")
	}
	expectedMessage := "firebaseConfig is required when overrideEmailPasswordFlow is true"
	if pluginErr.Error() != expectedMessage {
		t.Fatalf("expected %q, got %q", expectedMessage, pluginErr.Error())
	}
}

func TestSignInWithGoogleRequiresIDToken(t *testing.T) {
	verifier := &fakeVerifier{claimsByToken: googleClaims()}
	plugin := newTestPlugin(t, DefaultConfig(), verifier, NewMemoryStore())

	_, signInErr := plugin.SignInWithGoogle(context.Background(), SignInWithGoogleRequest{})
	if signInErr == nil {
		t.Fatalf("expected bad request")
	}
	var apiErr *APIError
	if !errors.As(signInErr, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", signInErr)
	}
	if apiErr.Message != "idToken is required" {
		t.Fatalf("expected %q, got %q", "idToken is required", apiErr.Message)
	}
	if verifier.calls != 0 {
		t.Fatalf("verifier must not be called for a missing token, got %d calls", verifier.calls)
	}
}

func TestSignInWithGoogleMintsSession(t *testing.T) {
	store := NewMemoryStore()
	plugin := newTestPlugin(t, DefaultConfig(), &fakeVerifier{claimsByToken: googleClaims()}, store)

	response, signInErr := plugin.SignInWithGoogle(context.Background(), SignInWithGoogleRequest{IDToken: "valid-token"})
	if signInErr != nil {
		t.Fatalf("sign-in error: %v", signInErr)
	}
	if response.User.ID == "" {
		t.Fatalf("expected user id in response")
	}
	if response.User.Email == nil || *response.User.Email != "user@example.com" {
		t.Fatalf("expected email in response, got %v", response.User.Email)
	}
	if response.Session.Token == "" {
		t.Fatalf("expected opaque session token")
	}
	remaining := time.Until(response.Session.ExpiresAt)
	if remaining < 6*24*time.Hour || remaining > 8*24*time.Hour {
		t.Fatalf("expected roughly seven day TTL, got %v", remaining)
	}
}

func TestSignInTwiceMintsDistinctSessions(t *testing.T) {
	store := NewMemoryStore()
	plugin := newTestPlugin(t, DefaultConfig(), &fakeVerifier{claimsByToken: googleClaims()}, store)

	first, firstErr := plugin.SignInWithGoogle(context.Background(), SignInWithGoogleRequest{IDToken: "valid-token"})
	second, secondErr := plugin.SignInWithGoogle(context.Background(), SignInWithGoogleRequest{IDToken: "valid-token"})
	if firstErr != nil || secondErr != nil {
		t.Fatalf("sign-in errors: %v, %v", firstErr, secondErr)
	}
	if first.User.ID != second.User.ID {
		t.Fatalf("expected same user, got %q and %q", first.User.ID, second.User.ID)
	}
	if first.Session.Token == second.Session.Token {
		t.Fatalf("expected a fresh session per sign-in")
	}
	if store.SessionCount() != 2 {
		t.Fatalf("expected two sessions, got %d", store.SessionCount())
	}
}

func TestSignInWithEmailTokenModeRequiresIDToken(t *testing.T) {
	plugin := newTestPlugin(t, DefaultConfig(), &fakeVerifier{claimsByToken: googleClaims()}, NewMemoryStore())

	_, signInErr := plugin.SignInWithEmail(context.Background(), SignInWithEmailRequest{Email: "a@b.c", Password: "secret"})
	var apiErr *APIError
	if !errors.As(signInErr, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "idToken is required" {
		t.Fatalf("expected idToken bad request, got %v", signInErr)
	}
}

func TestSignInWithEmailServerSideModeRequiresClientConfig(t *testing.T) {
	configuration := DefaultConfig()
	configuration.UseClientSideTokens = false
	plugin := newTestPlugin(t, configuration, &fakeVerifier{claimsByToken: googleClaims()}, NewMemoryStore())

	_, signInErr := plugin.SignInWithEmail(context.Background(), SignInWithEmailRequest{Email: "a@b.c", Password: "secret"})
	var apiErr *APIError
	if !errors.As(signInErr, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %v", signInErr)
	}
	expectedMessage := "firebaseConfig is required for server-side mode"
	if apiErr.Message != expectedMessage {
		t.Fatalf("expected %q, got %q", expectedMessage, apiErr.Message)
	}
}

func TestSignInWithEmailServerSideModeRequiresCredentials(t *testing.T) {
	configuration := DefaultConfig()
	configuration.UseClientSideTokens = false
	plugin := newTestPlugin(t, configuration, &fakeVerifier{claimsByToken: googleClaims()}, NewMemoryStore())

	_, signInErr := plugin.SignInWithEmail(context.Background(), SignInWithEmailRequest{Email: "a@b.c"})
	var apiErr *APIError
	if !errors.As(signInErr, &apiErr) || apiErr.Message != "email and password are required" {
		t.Fatalf("expected credentials bad request, got %v", signInErr)
	}
}

func TestSignInSurfacesVerifierMessage(t *testing.T) {
	verifier := &fakeVerifier{verifyErr: errors.New("ID token has expired at 2026-01-01")}
	plugin := newTestPlugin(t, DefaultConfig(), verifier, NewMemoryStore())

	_, signInErr := plugin.SignInWithEmail(context.Background(), SignInWithEmailRequest{IDToken: "expired"})
	var apiErr *APIError
	if !errors.As(signInErr, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %v", signInErr)
	}
	if !strings.Contains(apiErr.Message, "ID token has expired at 2026-01-01") {
		t.Fatalf("expected verifier message in %q", apiErr.Message)
	}
}

// failingSessionStore wraps MemoryStore and rejects session creation.
type failingSessionStore struct {
	*MemoryStore
}

func (store *failingSessionStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*Session, error) {
	return nil, errors.New("disk full")
}

func TestSignInReportsSessionCreationFailure(t *testing.T) {
	store := &failingSessionStore{MemoryStore: NewMemoryStore()}
	plugin := newTestPlugin(t, DefaultConfig(), &fakeVerifier{claimsByToken: googleClaims()}, store)

	_, signInErr := plugin.SignInWithGoogle(context.Background(), SignInWithGoogleRequest{IDToken: "valid-token"})
	var apiErr *APIError
	if !errors.As(signInErr, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected internal failure, got %v", signInErr)
	}
	if !errors.Is(signInErr, ErrSessionCreationFailed) {
		t.Fatalf("expected ErrSessionCreationFailed in chain, got %v", signInErr)
	}
}

func TestPasswordResetFlowsRequireClientConfig(t *testing.T) {
	plugin := newTestPlugin(t, DefaultConfig(), &fakeVerifier{}, NewMemoryStore())

	if _, sendErr := plugin.SendPasswordReset(context.Background(), SendPasswordResetRequest{Email: "a@b.c"}); sendErr == nil {
		t.Fatalf("expected send to fail without client config")
	}
	if _, confirmErr := plugin.ConfirmPasswordReset(context.Background(), ConfirmPasswordResetRequest{OobCode: "code", NewPassword: "pw"}); confirmErr == nil {
		t.Fatalf("expected confirm to fail without client config")
	}
	if _, verifyErr := plugin.VerifyPasswordResetCode(context.Background(), VerifyPasswordResetCodeRequest{OobCode: "code"}); verifyErr == nil {
		t.Fatalf("expected verify to fail without client config")
	}
}

func TestPasswordResetValidatesInput(t *testing.T) {
	plugin := newTestPlugin(t, DefaultConfig(), &fakeVerifier{}, NewMemoryStore())

	_, sendErr := plugin.SendPasswordReset(context.Background(), SendPasswordResetRequest{})
	var apiErr *APIError
	if !errors.As(sendErr, &apiErr) || apiErr.Message != "email is required" {
		t.Fatalf("expected email bad request, got %v", sendErr)
	}

	_, confirmErr := plugin.ConfirmPasswordReset(context.Background(), ConfirmPasswordResetRequest{OobCode: "code"})
	if !errors.As(confirmErr, &apiErr) || apiErr.Message != "oobCode and newPassword are required" {
		t.Fatalf("expected oobCode bad request, got %v", confirmErr)
	}
}

func TestMetricsRecordOutcomes(t *testing.T) {
	metrics := NewCounterMetrics()
	plugin, pluginErr := NewPlugin(DefaultConfig(), &fakeVerifier{claimsByToken: googleClaims()}, NewMemoryStore(), zaptest.NewLogger(t), metrics)
	if pluginErr != nil {
		t.Fatalf("plugin construction error: %v", pluginErr)
	}

	if _, signInErr := plugin.SignInWithGoogle(context.Background(), SignInWithGoogleRequest{IDToken: "valid-token"}); signInErr != nil {
		t.Fatalf("sign-in error: %v", signInErr)
	}
	if _, signInErr := plugin.SignInWithGoogle(context.Background(), SignInWithGoogleRequest{IDToken: "bogus"}); signInErr == nil {
		t.Fatalf("expected failure for unknown token")
	}

	if metrics.Count(metricSignInGoogleSuccess) != 1 {
		t.Fatalf("expected one success, got %d", metrics.Count(metricSignInGoogleSuccess))
	}
	if metrics.Count(metricSignInGoogleFailure) != 1 {
		t.Fatalf("expected one failure, got %d", metrics.Count(metricSignInGoogleFailure))
	}
}
