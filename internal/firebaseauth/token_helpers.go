package firebaseauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const sessionTokenByteLength = 32

// newRecordID builds a sortable identifier from the creation timestamp plus a
// short random suffix to separate records created in the same nanosecond.
func newRecordID(now time.Time) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("record_id.random: %w", err)
	}
	nowString := now.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(nowString)) + "-" + base64.RawURLEncoding.EncodeToString(suffix), nil
}

// generateSessionToken produces the opaque bearer credential for a session.
func generateSessionToken() (string, error) {
	randomBytes := make([]byte, sessionTokenByteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("session_token.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
