package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/leech/pkg/sensitive"

	pgxv5 "github.com/jackc/pgx/v5"
)

// Vault stores sensitive values keyed by token. The first value written for
// a token is kept.
type Vault struct {
	conn pgxIConn
}

func NewVault(conn pgxIConn) *Vault {
	return &Vault{conn: conn}
}

func (v *Vault) PutIfAbsent(ctx context.Context, token, value string) error {
	if _, err := v.conn.Exec(ctx, putSensitiveSQL, token, value); err != nil {
		return fmt.Errorf("store sensitive value: %w", err)
	}
	return nil
}

func (v *Vault) Get(ctx context.Context, token string) (string, error) {
	var value string
	err := v.conn.QueryRow(ctx, getSensitiveSQL, token).Scan(&value)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", sensitive.ErrTokenNotFound, token)
	}
	if err != nil {
		return "", fmt.Errorf("read sensitive value: %w", err)
	}
	return value, nil
}

const putSensitiveSQL = `
INSERT INTO leech_sensitive_values (token, sensitive_value)
VALUES ($1, $2)
ON CONFLICT (token) DO NOTHING;
`

const getSensitiveSQL = `
SELECT sensitive_value FROM leech_sensitive_values WHERE token = $1;
`
