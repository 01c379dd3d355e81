package firebaseauth

import (
	"errors"
	"net/http"
)

// ClientConfig carries the Firebase web app settings required by server-side
// credential exchange and password-reset flows.
type ClientConfig struct {
	APIKey string
	// Endpoint overrides the Identity Toolkit base URL; tests point it at a
	// local server. Empty selects the production endpoint.
	Endpoint string
	// PasswordResetURL is attached to reset emails as the continue URL.
	PasswordResetURL string
	// HTTPClient overrides the client used for Identity Toolkit calls.
	HTTPClient *http.Client
}

// Config is the plugin configuration, set once at construction and read-only
// thereafter.
type Config struct {
	// UseClientSideTokens selects the token-mode email sign-in: the browser
	// exchanges credentials with Firebase and posts only the ID token.
	UseClientSideTokens bool
	// OverrideEmailPasswordFlow redirects the host's native /sign-in/email
	// and /sign-up/email endpoints through Firebase.
	OverrideEmailPasswordFlow bool
	// ServerSideOnly suppresses all HTTP endpoint registration.
	ServerSideOnly bool
	// SessionExpiresInDays is the minted session TTL. Zero means the default
	// of seven days.
	SessionExpiresInDays int
	// Client is required for server-side email/password and password-reset
	// flows, and whenever OverrideEmailPasswordFlow is enabled.
	Client *ClientConfig
}

const defaultSessionExpiresInDays = 7

// DefaultConfig returns the configuration the plugin assumes when callers do
// not override a field.
func DefaultConfig() Config {
	return Config{
		UseClientSideTokens:  true,
		SessionExpiresInDays: defaultSessionExpiresInDays,
	}
}

var errOverrideNeedsClientConfig = errors.New("firebaseConfig is required when overrideEmailPasswordFlow is true")

func (config Config) validate() error {
	if config.OverrideEmailPasswordFlow && config.Client == nil {
		return errOverrideNeedsClientConfig
	}
	return nil
}

func (config Config) sessionExpiresInDays() int {
	if config.SessionExpiresInDays <= 0 {
		return defaultSessionExpiresInDays
	}
	return config.SessionExpiresInDays
}
