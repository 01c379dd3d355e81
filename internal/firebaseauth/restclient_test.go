package firebaseauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityToolkitClientRequiresAPIKey(t *testing.T) {
	if _, clientErr := NewIdentityToolkitClient(ClientConfig{}); !errors.Is(clientErr, errMissingAPIKey) {
		t.Fatalf("expected errMissingAPIKey, got %v", clientErr)
	}
}

func TestSignInWithPasswordSendsKeyAndDecodesToken(t *testing.T) {
	var capturedPath string
	var capturedKey string
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		capturedPath = request.URL.Path
		capturedKey = request.URL.Query().Get("key")
		_ = json.NewDecoder(request.Body).Decode(&capturedBody)
		_ = json.NewEncoder(writer).Encode(map[string]any{"idToken": "issued-token"})
	}))
	defer server.Close()

	client, clientErr := NewIdentityToolkitClient(ClientConfig{APIKey: "test-key", Endpoint: server.URL})
	if clientErr != nil {
		t.Fatalf("client construction error: %v", clientErr)
	}

	idToken, signInErr := client.SignInWithPassword(context.Background(), "user@example.com", "secret123")
	if signInErr != nil {
		t.Fatalf("unexpected error: %v", signInErr)
	}
	if idToken != "issued-token" {
		t.Fatalf("expected issued-token, got %q", idToken)
	}
	if capturedPath != "/v1/accounts:signInWithPassword" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if capturedKey != "test-key" {
		t.Fatalf("expected api key in query, got %q", capturedKey)
	}
	if capturedBody["returnSecureToken"] != true {
		t.Fatalf("expected returnSecureToken, got %v", capturedBody)
	}
}

func TestProviderErrorCarriesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"error": map[string]any{"code": 400, "message": "EMAIL_NOT_FOUND"},
		})
	}))
	defer server.Close()

	client, clientErr := NewIdentityToolkitClient(ClientConfig{APIKey: "test-key", Endpoint: server.URL})
	if clientErr != nil {
		t.Fatalf("client construction error: %v", clientErr)
	}

	sendErr := client.SendPasswordResetEmail(context.Background(), "absent@example.com")
	var providerErr *ProviderError
	if !errors.As(sendErr, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", sendErr)
	}
	if providerErr.Message != "EMAIL_NOT_FOUND" {
		t.Fatalf("expected EMAIL_NOT_FOUND, got %q", providerErr.Message)
	}
	if providerErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", providerErr.StatusCode)
	}
}

func TestProviderErrorWithoutEnvelopeFallsBackToStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusInternalServerError)
		_, _ = writer.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client, clientErr := NewIdentityToolkitClient(ClientConfig{APIKey: "test-key", Endpoint: server.URL})
	if clientErr != nil {
		t.Fatalf("client construction error: %v", clientErr)
	}

	_, signInErr := client.SignInWithPassword(context.Background(), "user@example.com", "pw")
	var providerErr *ProviderError
	if !errors.As(signInErr, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", signInErr)
	}
	if providerErr.Message != "identity toolkit returned status 500" {
		t.Fatalf("unexpected message %q", providerErr.Message)
	}
}

func TestSendPasswordResetIncludesContinueURL(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewDecoder(request.Body).Decode(&capturedBody)
		_ = json.NewEncoder(writer).Encode(map[string]any{"email": "user@example.com"})
	}))
	defer server.Close()

	client, clientErr := NewIdentityToolkitClient(ClientConfig{
		APIKey:           "test-key",
		Endpoint:         server.URL,
		PasswordResetURL: "https://app.example.com/reset",
	})
	if clientErr != nil {
		t.Fatalf("client construction error: %v", clientErr)
	}

	if sendErr := client.SendPasswordResetEmail(context.Background(), "user@example.com"); sendErr != nil {
		t.Fatalf("unexpected error: %v", sendErr)
	}
	if capturedBody["requestType"] != "PASSWORD_RESET" {
		t.Fatalf("expected PASSWORD_RESET request type, got %v", capturedBody)
	}
	if capturedBody["continueUrl"] != "https://app.example.com/reset" {
		t.Fatalf("expected continue url, got %v", capturedBody["continueUrl"])
	}
}

func TestUpdateDisplayNameKeepsTokenWhenNoneReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewEncoder(writer).Encode(map[string]any{})
	}))
	defer server.Close()

	client, clientErr := NewIdentityToolkitClient(ClientConfig{APIKey: "test-key", Endpoint: server.URL})
	if clientErr != nil {
		t.Fatalf("client construction error: %v", clientErr)
	}

	idToken, updateErr := client.UpdateDisplayName(context.Background(), "original-token", "New Name")
	if updateErr != nil {
		t.Fatalf("unexpected error: %v", updateErr)
	}
	if idToken != "original-token" {
		t.Fatalf("expected original token back, got %q", idToken)
	}
}

func TestVerifyPasswordResetCodeReturnsEmail(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_ = json.NewDecoder(request.Body).Decode(&capturedBody)
		_ = json.NewEncoder(writer).Encode(map[string]any{"email": "user@example.com"})
	}))
	defer server.Close()

	client, clientErr := NewIdentityToolkitClient(ClientConfig{APIKey: "test-key", Endpoint: server.URL})
	if clientErr != nil {
		t.Fatalf("client construction error: %v", clientErr)
	}

	email, verifyErr := client.VerifyPasswordResetCode(context.Background(), "oob-code")
	if verifyErr != nil {
		t.Fatalf("unexpected error: %v", verifyErr)
	}
	if email != "user@example.com" {
		t.Fatalf("expected email back, got %q", email)
	}
	if _, hasPassword := capturedBody["newPassword"]; hasPassword {
		t.Fatalf("verify must not send a new password: %v", capturedBody)
	}
}
