package firebaseauth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Reconciler links verified provider claims to host user records.
type Reconciler struct {
	store  Store
	logger *zap.Logger
}

// NewReconciler constructs a Reconciler over the host store.
func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	if store == nil {
		panic("firebaseauth: reconciler requires a store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile finds or creates the user for the claims and upserts the account
// link. rawToken is retained on the link for audit and refresh.
func (reconciler *Reconciler) Reconcile(ctx context.Context, claims DecodedClaims, rawToken string) (*User, error) {
	if claims.SubjectID == "" {
		return nil, fmt.Errorf("reconcile: %w", errors.New("claims missing subject id"))
	}

	matchedUser, lookupErr := reconciler.findLinkedUser(ctx, claims)
	if lookupErr != nil {
		return nil, lookupErr
	}

	if matchedUser == nil && claims.Email != "" {
		userByEmail, emailErr := reconciler.store.GetUserByEmail(ctx, claims.Email)
		if emailErr != nil {
			return nil, fmt.Errorf("reconcile.lookup_email: %w", emailErr)
		}
		matchedUser = userByEmail
	}

	created := false
	if matchedUser == nil {
		seededUser := User{
			Email:         claims.Email,
			Name:          claims.Name,
			Image:         claims.PictureURL,
			EmailVerified: claims.EmailVerified,
		}
		createdUser, createErr := reconciler.store.CreateUser(ctx, seededUser)
		if createErr != nil {
			return nil, fmt.Errorf("reconcile.create_user: %w", createErr)
		}
		matchedUser = createdUser
		created = true
	}

	if !created {
		if updateErr := reconciler.enrich(ctx, matchedUser, claims); updateErr != nil {
			return nil, updateErr
		}
	}

	if upsertErr := reconciler.upsertLink(ctx, matchedUser.ID, claims, rawToken); upsertErr != nil {
		return nil, upsertErr
	}
	return matchedUser, nil
}

// findLinkedUser resolves a user through an existing account link. A store
// without account lookup, or a lookup error, degrades to "not linked yet".
func (reconciler *Reconciler) findLinkedUser(ctx context.Context, claims DecodedClaims) (*User, error) {
	accountGetter, supported := reconciler.store.(AccountGetter)
	if !supported {
		return nil, nil
	}
	link, getErr := accountGetter.GetAccount(ctx, ProviderID, claims.SubjectID)
	if getErr != nil {
		reconciler.logger.Debug("account lookup unavailable, continuing without link",
			zap.String("code", "reconcile.lookup_account_degraded"),
			zap.Error(getErr))
		return nil, nil
	}
	if link == nil {
		return nil, nil
	}
	linkedUser, userErr := reconciler.store.GetUser(ctx, link.UserID)
	if userErr != nil {
		return nil, fmt.Errorf("reconcile.load_linked_user: %w", userErr)
	}
	if linkedUser == nil {
		reconciler.logger.Warn("account link references a missing user",
			zap.String("code", "reconcile.dangling_link"),
			zap.String("user_id", link.UserID))
	}
	return linkedUser, nil
}

// enrich refreshes name, image, and emailVerified from the claims. Fields the
// claims do not carry keep their stored value; emailVerified never downgrades.
func (reconciler *Reconciler) enrich(ctx context.Context, existingUser *User, claims DecodedClaims) error {
	var update UserUpdate
	changed := false
	if claims.Name != "" && claims.Name != existingUser.Name {
		update.Name = &claims.Name
		existingUser.Name = claims.Name
		changed = true
	}
	if claims.PictureURL != "" && claims.PictureURL != existingUser.Image {
		update.Image = &claims.PictureURL
		existingUser.Image = claims.PictureURL
		changed = true
	}
	if claims.EmailVerified && !existingUser.EmailVerified {
		verified := true
		update.EmailVerified = &verified
		existingUser.EmailVerified = true
		changed = true
	}
	if !changed {
		return nil
	}
	if updateErr := reconciler.store.UpdateUser(ctx, existingUser.ID, update); updateErr != nil {
		return fmt.Errorf("reconcile.update_user: %w", updateErr)
	}
	return nil
}

func (reconciler *Reconciler) upsertLink(ctx context.Context, userID string, claims DecodedClaims, rawToken string) error {
	link := AccountLink{
		UserID:            userID,
		Provider:          ProviderID,
		ProviderAccountID: claims.SubjectID,
		AccessToken:       rawToken,
		ExpiresAt:         claims.ExpiresAt,
	}
	if upserter, supported := reconciler.store.(AccountUpserter); supported {
		if upsertErr := upserter.UpsertAccount(ctx, link); upsertErr != nil {
			return fmt.Errorf("reconcile.upsert_account: %w", upsertErr)
		}
		return nil
	}
	createErr := reconciler.store.CreateAccount(ctx, link)
	if createErr == nil {
		return nil
	}
	if errors.Is(createErr, ErrDuplicateAccountLink) {
		// Concurrent sign-ins for the same identity race on the first link
		// creation; the loser's duplicate is not a failure.
		reconciler.logger.Debug("account link already present",
			zap.String("code", "reconcile.duplicate_link_absorbed"),
			zap.String("provider_account_id", claims.SubjectID))
		return nil
	}
	return fmt.Errorf("reconcile.create_account: %w", createErr)
}
