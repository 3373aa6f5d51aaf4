package auth

import (
	"context"
	"errors"
	"fmt"
)

// LocalVerifier checks username/password pairs against stored credentials.
type LocalVerifier struct {
	identities IdentityRepository
}

// NewLocalVerifier creates a verifier backed by the identity repository.
func NewLocalVerifier(identities IdentityRepository) *LocalVerifier {
	return &LocalVerifier{identities: identities}
}

// Verify checks a credential against the local store. It returns the user on
// success and (nil, nil) on every rejection cause: unknown username, no
// local identity, inactive account, malformed hash, or password mismatch.
// The causes are deliberately indistinguishable so a caller cannot leak
// which one occurred. A non-nil error means storage failed, not that the
// credential was rejected.
func (v *LocalVerifier) Verify(ctx context.Context, username, password string) (*User, error) {
	user, hash, err := v.identities.GetLocalCredential(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	if !user.IsActive {
		return nil, nil
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil {
		// Malformed stored hash. Treat as a mismatch rather than an
		// error so the response is identical to a wrong password.
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	return user, nil
}
