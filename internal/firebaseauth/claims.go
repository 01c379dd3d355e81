package firebaseauth

import (
	"context"
	"time"
)

// ProviderID identifies Firebase in account-link records.
const ProviderID = "firebase"

// DecodedClaims holds the verified identity attributes for one ID token.
// Empty strings mean the provider did not assert the field.
type DecodedClaims struct {
	SubjectID     string
	Email         string
	Name          string
	PictureURL    string
	EmailVerified bool
	ExpiresAt     time.Time
}

// AdminTokenVerifier validates Firebase ID tokens through the admin surface.
type AdminTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*DecodedClaims, error)
}
