// Package sensitive replaces flagged property values with opaque tokens and
// defines the vault the real values are written to.
package sensitive

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/leech/pkg/identity"
)

// MissingValueMarker stands in for a sensitive property absent from the
// source record. It is written inline; there is nothing to vault.
const MissingValueMarker = "AlgernonSensitiveDataFieldMissingValue"

var ErrTokenNotFound = errors.New("sensitive token not found")

// Token is the stand-in stored in the graph and index for the value of field
// on the object identified by owner.
func Token(field string, owner identity.InternalID) string {
	return identity.ComputeInternalID(field + owner.String()).String()
}

// Vault stores sensitive values keyed by token.
//
// PutIfAbsent keeps the first value written for a token; later writes of the
// same token are no-ops and return nil. Get returns ErrTokenNotFound for
// tokens that were never written.
type Vault interface {
	PutIfAbsent(ctx context.Context, token, value string) error
	Get(ctx context.Context, token string) (string, error)
}

// Redact vaults value and returns its token.
func Redact(ctx context.Context, vault Vault, field string, owner identity.InternalID, value any) (string, error) {
	token := Token(field, owner)
	if err := vault.PutIfAbsent(ctx, token, identity.StringValue(value)); err != nil {
		return "", err
	}
	return token, nil
}
