package firebaseauth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Request bodies accepted by the plugin endpoints.
type (
	// SignInWithGoogleRequest carries the Google-issued Firebase ID token.
	SignInWithGoogleRequest struct {
		IDToken string `json:"idToken"`
	}

	// SignInWithEmailRequest is a union: token mode uses IDToken, server-side
	// mode uses Email and Password.
	SignInWithEmailRequest struct {
		IDToken  string `json:"idToken"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	// SendPasswordResetRequest asks for a reset email.
	SendPasswordResetRequest struct {
		Email string `json:"email"`
	}

	// ConfirmPasswordResetRequest applies a new password via the oob code.
	ConfirmPasswordResetRequest struct {
		OobCode     string `json:"oobCode"`
		NewPassword string `json:"newPassword"`
	}

	// VerifyPasswordResetCodeRequest probes an oob code.
	VerifyPasswordResetCodeRequest struct {
		OobCode string `json:"oobCode"`
	}
)

// AuthResponse is the success envelope for every sign-in entry point.
type AuthResponse struct {
	User    AuthResponseUser    `json:"user"`
	Session AuthResponseSession `json:"session"`
}

// AuthResponseUser mirrors the host user record; absent fields encode as null.
type AuthResponseUser struct {
	ID    string  `json:"id"`
	Email *string `json:"email"`
	Name  *string `json:"name"`
	Image *string `json:"image"`
}

// AuthResponseSession exposes the minted session.
type AuthResponseSession struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"token"`
}

// StatusResponse is the envelope for password-reset dispatch and confirm.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VerifyPasswordResetCodeResponse reports whether an oob code is still valid.
type VerifyPasswordResetCodeResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

// Metric event names recorded per sign-in outcome.
const (
	metricSignInGoogleSuccess = "sign_in.google.success"
	metricSignInGoogleFailure = "sign_in.google.failure"
	metricSignInEmailSuccess  = "sign_in.email.success"
	metricSignInEmailFailure  = "sign_in.email.failure"
	metricPasswordResetSent   = "password_reset.sent"
)

// Plugin wires the verify-reconcile-mint pipeline behind the sign-in entry
// points. Construct it once; the configuration is read-only afterwards.
type Plugin struct {
	config     Config
	verifier   AdminTokenVerifier
	reconciler *Reconciler
	minter     *SessionMinter
	client     *IdentityToolkitClient
	logger     *zap.Logger
	metrics    MetricsRecorder
}

// NewPlugin validates the configuration and builds the orchestrator set.
// Enabling OverrideEmailPasswordFlow without client configuration fails here,
// before any endpoint can register.
func NewPlugin(configuration Config, verifier AdminTokenVerifier, store Store, logger *zap.Logger, metrics MetricsRecorder) (*Plugin, error) {
	if validateErr := configuration.validate(); validateErr != nil {
		return nil, validateErr
	}
	if verifier == nil {
		panic("firebaseauth: plugin requires a token verifier")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	var toolkitClient *IdentityToolkitClient
	if configuration.Client != nil {
		builtClient, clientErr := NewIdentityToolkitClient(*configuration.Client)
		if clientErr != nil {
			return nil, clientErr
		}
		toolkitClient = builtClient
	}
	return &Plugin{
		config:     configuration,
		verifier:   verifier,
		reconciler: NewReconciler(store, logger),
		minter:     NewSessionMinter(store, configuration.sessionExpiresInDays()),
		client:     toolkitClient,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Config returns the plugin configuration.
func (plugin *Plugin) Config() Config {
	return plugin.config
}

// SignInWithGoogle runs the pipeline for a Google-issued ID token.
func (plugin *Plugin) SignInWithGoogle(ctx context.Context, request SignInWithGoogleRequest) (*AuthResponse, error) {
	if request.IDToken == "" {
		return nil, badRequest("idToken is required")
	}
	response, signInErr := plugin.completeTokenSignIn(ctx, request.IDToken)
	if signInErr != nil {
		plugin.metrics.Increment(metricSignInGoogleFailure)
		return nil, signInErr
	}
	plugin.metrics.Increment(metricSignInGoogleSuccess)
	return response, nil
}

// SignInWithEmail runs the pipeline for an email identity. In token mode the
// caller supplies the ID token; in server-side mode the plugin exchanges the
// credentials with Firebase first.
func (plugin *Plugin) SignInWithEmail(ctx context.Context, request SignInWithEmailRequest) (*AuthResponse, error) {
	idToken := request.IDToken
	if plugin.config.UseClientSideTokens {
		if idToken == "" {
			return nil, badRequest("idToken is required")
		}
	} else {
		if request.Email == "" || request.Password == "" {
			return nil, badRequest("email and password are required")
		}
		if plugin.client == nil {
			return nil, missingClientConfig("firebaseConfig is required for server-side mode")
		}
		exchangedToken, exchangeErr := plugin.client.SignInWithPassword(ctx, request.Email, request.Password)
		if exchangeErr != nil {
			plugin.metrics.Increment(metricSignInEmailFailure)
			return nil, unauthorized("invalid credentials", exchangeErr)
		}
		idToken = exchangedToken
	}
	response, signInErr := plugin.completeTokenSignIn(ctx, idToken)
	if signInErr != nil {
		plugin.metrics.Increment(metricSignInEmailFailure)
		return nil, signInErr
	}
	plugin.metrics.Increment(metricSignInEmailSuccess)
	return response, nil
}

// SendPasswordReset dispatches a reset email through Firebase.
func (plugin *Plugin) SendPasswordReset(ctx context.Context, request SendPasswordResetRequest) (*StatusResponse, error) {
	if request.Email == "" {
		return nil, badRequest("email is required")
	}
	if plugin.client == nil {
		return nil, missingClientConfig("firebaseConfig is required for password reset")
	}
	if sendErr := plugin.client.SendPasswordResetEmail(ctx, request.Email); sendErr != nil {
		return nil, badRequestCause("failed to send password reset email", sendErr)
	}
	plugin.metrics.Increment(metricPasswordResetSent)
	return &StatusResponse{Success: true, Message: "password reset email sent"}, nil
}

// ConfirmPasswordReset applies the new password via the emailed oob code.
func (plugin *Plugin) ConfirmPasswordReset(ctx context.Context, request ConfirmPasswordResetRequest) (*StatusResponse, error) {
	if request.OobCode == "" || request.NewPassword == "" {
		return nil, badRequest("oobCode and newPassword are required")
	}
	if plugin.client == nil {
		return nil, missingClientConfig("firebaseConfig is required for password reset")
	}
	if confirmErr := plugin.client.ConfirmPasswordReset(ctx, request.OobCode, request.NewPassword); confirmErr != nil {
		return nil, badRequestCause("failed to confirm password reset", confirmErr)
	}
	return &StatusResponse{Success: true, Message: "password has been reset"}, nil
}

// VerifyPasswordResetCode checks an oob code without consuming it.
func (plugin *Plugin) VerifyPasswordResetCode(ctx context.Context, request VerifyPasswordResetCodeRequest) (*VerifyPasswordResetCodeResponse, error) {
	if request.OobCode == "" {
		return nil, badRequest("oobCode is required")
	}
	if plugin.client == nil {
		return nil, missingClientConfig("firebaseConfig is required for password reset")
	}
	email, verifyErr := plugin.client.VerifyPasswordResetCode(ctx, request.OobCode)
	if verifyErr != nil {
		return nil, badRequestCause("invalid password reset code", verifyErr)
	}
	return &VerifyPasswordResetCodeResponse{Valid: true, Email: email}, nil
}

// OverrideSignIn authenticates native email/password credentials against
// Firebase and runs the pipeline. Used by the flow-override routes only.
func (plugin *Plugin) OverrideSignIn(ctx context.Context, email string, password string) (*AuthResponse, error) {
	if email == "" || password == "" {
		return nil, badRequest("email and password are required")
	}
	idToken, exchangeErr := plugin.client.SignInWithPassword(ctx, email, password)
	if exchangeErr != nil {
		plugin.metrics.Increment(metricSignInEmailFailure)
		return nil, unauthorized("invalid credentials", exchangeErr)
	}
	response, signInErr := plugin.completeTokenSignIn(ctx, idToken)
	if signInErr != nil {
		plugin.metrics.Increment(metricSignInEmailFailure)
		return nil, signInErr
	}
	plugin.metrics.Increment(metricSignInEmailSuccess)
	return response, nil
}

// OverrideSignUp creates the identity with Firebase, optionally sets the
// display name, and runs the pipeline. Used by the flow-override routes only.
func (plugin *Plugin) OverrideSignUp(ctx context.Context, email string, password string, name string) (*AuthResponse, error) {
	if email == "" || password == "" {
		return nil, badRequest("email and password are required")
	}
	idToken, signUpErr := plugin.client.SignUpWithPassword(ctx, email, password)
	if signUpErr != nil {
		plugin.metrics.Increment(metricSignInEmailFailure)
		return nil, unauthorized("sign up failed", signUpErr)
	}
	if name != "" {
		refreshedToken, profileErr := plugin.client.UpdateDisplayName(ctx, idToken, name)
		if profileErr != nil {
			plugin.metrics.Increment(metricSignInEmailFailure)
			return nil, unauthorized("sign up failed", profileErr)
		}
		idToken = refreshedToken
	}
	response, signInErr := plugin.completeTokenSignIn(ctx, idToken)
	if signInErr != nil {
		plugin.metrics.Increment(metricSignInEmailFailure)
		return nil, signInErr
	}
	plugin.metrics.Increment(metricSignInEmailSuccess)
	return response, nil
}

// completeTokenSignIn drives Verify -> Reconcile -> Mint for one ID token.
func (plugin *Plugin) completeTokenSignIn(ctx context.Context, idToken string) (*AuthResponse, error) {
	claims, verifyErr := plugin.verifier.VerifyIDToken(ctx, idToken)
	if verifyErr != nil {
		// Verification failure is never retried; the token will not become
		// valid on a second attempt.
		return nil, unauthorized("invalid ID token", verifyErr)
	}
	user, reconcileErr := plugin.reconciler.Reconcile(ctx, *claims, idToken)
	if reconcileErr != nil {
		plugin.logger.Error("identity reconciliation failed",
			zap.String("code", "sign_in.reconcile_failed"),
			zap.Error(reconcileErr))
		return nil, internalFailure("failed to resolve user", reconcileErr)
	}
	session, mintErr := plugin.minter.Mint(ctx, user.ID)
	if mintErr != nil {
		plugin.logger.Error("session creation failed",
			zap.String("code", "sign_in.mint_failed"),
			zap.String("user_id", user.ID),
			zap.Error(mintErr))
		return nil, internalFailure("failed to create session", mintErr)
	}
	return &AuthResponse{
		User: AuthResponseUser{
			ID:    user.ID,
			Email: nullableString(user.Email),
			Name:  nullableString(user.Name),
			Image: nullableString(user.Image),
		},
		Session: AuthResponseSession{
			ID:        session.ID,
			ExpiresAt: session.ExpiresAt,
			Token:     session.Token,
		},
	}, nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
