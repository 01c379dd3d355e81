package firebaseauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseAuth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/option"
)

// AdminVerifierConfig configures the Firebase Admin SDK verifier.
type AdminVerifierConfig struct {
	ProjectID       string
	CredentialsFile string
}

type adminIDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseAuth.Token, error)
}

// AdminVerifier verifies ID tokens with the Firebase Admin SDK.
type AdminVerifier struct {
	verifier adminIDTokenVerifier
}

var (
	_ AdminTokenVerifier = (*AdminVerifier)(nil)
	_ AdminTokenVerifier = (*UnverifiedTokenVerifier)(nil)
)

// NewAdminVerifier initializes the Firebase app and its auth client.
func NewAdminVerifier(ctx context.Context, configuration AdminVerifierConfig) (*AdminVerifier, error) {
	var clientOptions []option.ClientOption
	if configuration.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(configuration.CredentialsFile))
	}
	app, appErr := firebase.NewApp(ctx, &firebase.Config{ProjectID: configuration.ProjectID}, clientOptions...)
	if appErr != nil {
		return nil, fmt.Errorf("verifier.firebase_app: %w", appErr)
	}
	authClient, authErr := app.Auth(ctx)
	if authErr != nil {
		return nil, fmt.Errorf("verifier.auth_client: %w", authErr)
	}
	return &AdminVerifier{verifier: authClient}, nil
}

// VerifyIDToken validates the token and maps its payload to DecodedClaims.
func (adminVerifier *AdminVerifier) VerifyIDToken(ctx context.Context, idToken string) (*DecodedClaims, error) {
	token, verifyErr := adminVerifier.verifier.VerifyIDToken(ctx, idToken)
	if verifyErr != nil {
		return nil, verifyErr
	}
	claims := &DecodedClaims{
		SubjectID:     token.UID,
		Email:         stringClaim(token.Claims, "email"),
		Name:          stringClaim(token.Claims, "name"),
		PictureURL:    stringClaim(token.Claims, "picture"),
		EmailVerified: boolClaim(token.Claims, "email_verified"),
	}
	if token.Expires > 0 {
		claims.ExpiresAt = time.Unix(token.Expires, 0).UTC()
	}
	return claims, nil
}

func stringClaim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return value
}

func boolClaim(claims map[string]any, key string) bool {
	value, _ := claims[key].(bool)
	return value
}

var (
	errUnverifiedTokenMalformed  = errors.New("verifier.unverified.malformed_token")
	errUnverifiedTokenNoSubject  = errors.New("verifier.unverified.missing_subject")
	errUnverifiedTokenExpired    = errors.New("verifier.unverified.expired")
	errUnverifiedTokenEmptyInput = errors.New("verifier.unverified.empty_token")
)

// UnverifiedTokenVerifier decodes ID tokens without checking their signature.
// It exists for local development without Firebase credentials and must never
// back a production deployment.
type UnverifiedTokenVerifier struct {
	parser *jwt.Parser
	now    func() time.Time
}

// NewUnverifiedTokenVerifier constructs the development-only verifier.
func NewUnverifiedTokenVerifier() *UnverifiedTokenVerifier {
	return &UnverifiedTokenVerifier{
		parser: jwt.NewParser(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// VerifyIDToken decodes the payload and enforces expiry only.
func (devVerifier *UnverifiedTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*DecodedClaims, error) {
	if idToken == "" {
		return nil, errUnverifiedTokenEmptyInput
	}
	mapClaims := jwt.MapClaims{}
	if _, _, parseErr := devVerifier.parser.ParseUnverified(idToken, mapClaims); parseErr != nil {
		return nil, fmt.Errorf("%w: %v", errUnverifiedTokenMalformed, parseErr)
	}
	subject, _ := mapClaims["sub"].(string)
	if subject == "" {
		// Firebase places the uid in both "sub" and "user_id".
		subject, _ = mapClaims["user_id"].(string)
	}
	if subject == "" {
		return nil, errUnverifiedTokenNoSubject
	}
	claims := &DecodedClaims{
		SubjectID:     subject,
		Email:         stringClaim(mapClaims, "email"),
		Name:          stringClaim(mapClaims, "name"),
		PictureURL:    stringClaim(mapClaims, "picture"),
		EmailVerified: boolClaim(mapClaims, "email_verified"),
	}
	expiresAt, expErr := mapClaims.GetExpirationTime()
	if expErr == nil && expiresAt != nil {
		if expiresAt.Time.Before(devVerifier.now()) {
			return nil, errUnverifiedTokenExpired
		}
		claims.ExpiresAt = expiresAt.Time.UTC()
	}
	return claims, nil
}
