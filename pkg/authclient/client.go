// Package authclient is a typed HTTP client for the firebase-auth plugin
// endpoints. It serializes the fixed request bodies and decodes the response
// envelopes; it holds no sign-in logic of its own.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Action names advertised by Actions.
const (
	ActionSignInWithGoogle        = "signInWithGoogle"
	ActionSignInWithEmail         = "signInWithEmail"
	ActionSendPasswordReset       = "sendPasswordReset"
	ActionConfirmPasswordReset    = "confirmPasswordReset"
	ActionVerifyPasswordResetCode = "verifyPasswordResetCode"
)

// Sentinel errors exposed by the client.
var (
	ErrEmptyBaseURL   = errors.New("authclient.empty_base_url")
	ErrServerSideOnly = errors.New("authclient.server_side_only")
)

// APIError is a non-2xx response from the plugin.
type APIError struct {
	Status  int
	Message string
}

func (apiErr *APIError) Error() string {
	return fmt.Sprintf("authclient: status %d: %s", apiErr.Status, apiErr.Message)
}

// AuthResponse mirrors the plugin's sign-in success envelope.
type AuthResponse struct {
	User struct {
		ID    string  `json:"id"`
		Email *string `json:"email"`
		Name  *string `json:"name"`
		Image *string `json:"image"`
	} `json:"user"`
	Session struct {
		ID        string    `json:"id"`
		ExpiresAt time.Time `json:"expiresAt"`
		Token     string    `json:"token"`
	} `json:"session"`
}

// StatusResponse mirrors the password-reset envelopes.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VerifyPasswordResetCodeResponse mirrors the oob-code probe envelope.
type VerifyPasswordResetCodeResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

// Config configures the Client.
type Config struct {
	// BaseURL is the host framework's base URL, without the plugin prefix.
	BaseURL string
	// ServerSideOnly disables every action; calls fail with ErrServerSideOnly.
	ServerSideOnly bool
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client calls the plugin endpoints.
type Client struct {
	baseURL        string
	serverSideOnly bool
	httpClient     *http.Client
}

// New validates the configuration and builds a Client.
func New(configuration Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:        baseURL,
		serverSideOnly: configuration.ServerSideOnly,
		httpClient:     httpClient,
	}, nil
}

// Actions lists the operations this client exposes. A server-side-only client
// exposes none, matching the plugin registering zero endpoints in that mode.
func (client *Client) Actions() []string {
	if client.serverSideOnly {
		return []string{}
	}
	return []string{
		ActionSignInWithGoogle,
		ActionSignInWithEmail,
		ActionSendPasswordReset,
		ActionConfirmPasswordReset,
		ActionVerifyPasswordResetCode,
	}
}

// SignInWithGoogle posts a Google-issued ID token.
func (client *Client) SignInWithGoogle(ctx context.Context, idToken string) (*AuthResponse, error) {
	var response AuthResponse
	requestBody := map[string]string{"idToken": idToken}
	if callErr := client.post(ctx, "/firebase-auth/sign-in-with-google", requestBody, &response); callErr != nil {
		return nil, callErr
	}
	return &response, nil
}

// SignInWithEmailToken posts an email-identity ID token (token mode).
func (client *Client) SignInWithEmailToken(ctx context.Context, idToken string) (*AuthResponse, error) {
	var response AuthResponse
	requestBody := map[string]string{"idToken": idToken}
	if callErr := client.post(ctx, "/firebase-auth/sign-in-with-email", requestBody, &response); callErr != nil {
		return nil, callErr
	}
	return &response, nil
}

// SignInWithEmailPassword posts raw credentials (server-side mode).
func (client *Client) SignInWithEmailPassword(ctx context.Context, email string, password string) (*AuthResponse, error) {
	var response AuthResponse
	requestBody := map[string]string{"email": email, "password": password}
	if callErr := client.post(ctx, "/firebase-auth/sign-in-with-email", requestBody, &response); callErr != nil {
		return nil, callErr
	}
	return &response, nil
}

// SendPasswordReset requests a reset email.
func (client *Client) SendPasswordReset(ctx context.Context, email string) (*StatusResponse, error) {
	var response StatusResponse
	requestBody := map[string]string{"email": email}
	if callErr := client.post(ctx, "/firebase-auth/send-password-reset", requestBody, &response); callErr != nil {
		return nil, callErr
	}
	return &response, nil
}

// ConfirmPasswordReset applies a new password via the emailed oob code.
func (client *Client) ConfirmPasswordReset(ctx context.Context, oobCode string, newPassword string) (*StatusResponse, error) {
	var response StatusResponse
	requestBody := map[string]string{"oobCode": oobCode, "newPassword": newPassword}
	if callErr := client.post(ctx, "/firebase-auth/confirm-password-reset", requestBody, &response); callErr != nil {
		return nil, callErr
	}
	return &response, nil
}

// VerifyPasswordResetCode probes an oob code.
func (client *Client) VerifyPasswordResetCode(ctx context.Context, oobCode string) (*VerifyPasswordResetCodeResponse, error) {
	var response VerifyPasswordResetCodeResponse
	requestBody := map[string]string{"oobCode": oobCode}
	if callErr := client.post(ctx, "/firebase-auth/verify-password-reset-code", requestBody, &response); callErr != nil {
		return nil, callErr
	}
	return &response, nil
}

func (client *Client) post(ctx context.Context, path string, requestBody any, result any) error {
	if client.serverSideOnly {
		return ErrServerSideOnly
	}
	encoded, encodeErr := json.Marshal(requestBody)
	if encodeErr != nil {
		return fmt.Errorf("authclient.encode: %w", encodeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+path, bytes.NewReader(encoded))
	if requestErr != nil {
		return fmt.Errorf("authclient.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return fmt.Errorf("authclient.call: %w", doErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if readErr != nil {
		return fmt.Errorf("authclient.read: %w", readErr)
	}
	if response.StatusCode != http.StatusOK {
		return &APIError{Status: response.StatusCode, Message: decodeErrorMessage(body)}
	}
	if decodeErr := json.Unmarshal(body, result); decodeErr != nil {
		return fmt.Errorf("authclient.decode: %w", decodeErr)
	}
	return nil
}

func decodeErrorMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if decodeErr := json.Unmarshal(body, &envelope); decodeErr == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(body))
}
