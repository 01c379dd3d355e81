package firebaseauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const identityToolkitEndpoint = "https://identitytoolkit.googleapis.com"

var errMissingAPIKey = errors.New("identity_toolkit.missing_api_key")

// ProviderError is a rejection returned by the Identity Toolkit API, carrying
// the provider's message code (EMAIL_NOT_FOUND, INVALID_OOB_CODE, ...).
type ProviderError struct {
	StatusCode int
	Message    string
}

func (providerErr *ProviderError) Error() string {
	return providerErr.Message
}

// IdentityToolkitClient performs client-side credential exchange against the
// Firebase Identity Toolkit REST API. The admin SDK has no password sign-in,
// so server-side email/password and password-reset flows go through here.
type IdentityToolkitClient struct {
	apiKey           string
	endpoint         string
	passwordResetURL string
	httpClient       *http.Client
}

// NewIdentityToolkitClient builds a client from the plugin's ClientConfig.
func NewIdentityToolkitClient(configuration ClientConfig) (*IdentityToolkitClient, error) {
	if configuration.APIKey == "" {
		return nil, errMissingAPIKey
	}
	endpoint := configuration.Endpoint
	if endpoint == "" {
		endpoint = identityToolkitEndpoint
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &IdentityToolkitClient{
		apiKey:           configuration.APIKey,
		endpoint:         endpoint,
		passwordResetURL: configuration.PasswordResetURL,
		httpClient:       httpClient,
	}, nil
}

// SignInWithPassword exchanges email/password credentials for an ID token.
func (client *IdentityToolkitClient) SignInWithPassword(ctx context.Context, email string, password string) (string, error) {
	var result struct {
		IDToken string `json:"idToken"`
	}
	request := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	if callErr := client.call(ctx, "accounts:signInWithPassword", request, &result); callErr != nil {
		return "", callErr
	}
	return result.IDToken, nil
}

// SignUpWithPassword creates a Firebase identity and returns its ID token.
func (client *IdentityToolkitClient) SignUpWithPassword(ctx context.Context, email string, password string) (string, error) {
	var result struct {
		IDToken string `json:"idToken"`
	}
	request := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	if callErr := client.call(ctx, "accounts:signUp", request, &result); callErr != nil {
		return "", callErr
	}
	return result.IDToken, nil
}

// UpdateDisplayName sets the display name on the identity behind the token.
// The refreshed ID token carrying the new profile is returned.
func (client *IdentityToolkitClient) UpdateDisplayName(ctx context.Context, idToken string, displayName string) (string, error) {
	var result struct {
		IDToken string `json:"idToken"`
	}
	request := map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": true,
	}
	if callErr := client.call(ctx, "accounts:update", request, &result); callErr != nil {
		return "", callErr
	}
	if result.IDToken == "" {
		// The API may omit a fresh token when nothing else changed.
		return idToken, nil
	}
	return result.IDToken, nil
}

// SendPasswordResetEmail dispatches the reset email for the address.
func (client *IdentityToolkitClient) SendPasswordResetEmail(ctx context.Context, email string) error {
	request := map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}
	if client.passwordResetURL != "" {
		request["continueUrl"] = client.passwordResetURL
	}
	return client.call(ctx, "accounts:sendOobCode", request, nil)
}

// ConfirmPasswordReset applies a new password using the emailed oob code.
func (client *IdentityToolkitClient) ConfirmPasswordReset(ctx context.Context, oobCode string, newPassword string) error {
	request := map[string]any{
		"oobCode":     oobCode,
		"newPassword": newPassword,
	}
	return client.call(ctx, "accounts:resetPassword", request, nil)
}

// VerifyPasswordResetCode probes an oob code without consuming it and returns
// the email address the code was issued for.
func (client *IdentityToolkitClient) VerifyPasswordResetCode(ctx context.Context, oobCode string) (string, error) {
	var result struct {
		Email string `json:"email"`
	}
	request := map[string]any{"oobCode": oobCode}
	if callErr := client.call(ctx, "accounts:resetPassword", request, &result); callErr != nil {
		return "", callErr
	}
	return result.Email, nil
}

func (client *IdentityToolkitClient) call(ctx context.Context, action string, requestBody map[string]any, result any) error {
	encoded, encodeErr := json.Marshal(requestBody)
	if encodeErr != nil {
		return fmt.Errorf("identity_toolkit.encode.%s: %w", action, encodeErr)
	}
	callURL := fmt.Sprintf("%s/v1/%s?key=%s", client.endpoint, action, url.QueryEscape(client.apiKey))
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(encoded))
	if requestErr != nil {
		return fmt.Errorf("identity_toolkit.request.%s: %w", action, requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return fmt.Errorf("identity_toolkit.call.%s: %w", action, doErr)
	}
	defer func() { _ = response.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if readErr != nil {
		return fmt.Errorf("identity_toolkit.read.%s: %w", action, readErr)
	}
	if response.StatusCode != http.StatusOK {
		return &ProviderError{
			StatusCode: response.StatusCode,
			Message:    providerMessage(body, response.StatusCode),
		}
	}
	if result == nil {
		return nil
	}
	if decodeErr := json.Unmarshal(body, result); decodeErr != nil {
		return fmt.Errorf("identity_toolkit.decode.%s: %w", action, decodeErr)
	}
	return nil
}

func providerMessage(body []byte, statusCode int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if decodeErr := json.Unmarshal(body, &envelope); decodeErr == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("identity toolkit returned status %d", statusCode)
}
