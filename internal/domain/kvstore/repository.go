package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
)

// ErrCorrupt marks a stored value that could not be decoded.
var ErrCorrupt = errors.New("kvstore: corrupt value")

// Repository is the durable key-value port. Get reports ok=false for a
// missing key without an error.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes key into dst. Decode failures are marked with ErrCorrupt.
func GetJSON(ctx context.Context, repo Repository, key string, dst any) (bool, error) {
	raw, ok, err := repo.Get(ctx, key)
	if err != nil {
		return false, crerr.Wrapf(err, "kv get %q", key)
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: %w", ErrCorrupt, crerr.Wrapf(err, "kv decode %q", key))
	}
	return true, nil
}

func SetJSON(ctx context.Context, repo Repository, key string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return crerr.Wrapf(err, "kv encode %q", key)
	}
	if err := repo.Set(ctx, key, raw); err != nil {
		return crerr.Wrapf(err, "kv set %q", key)
	}
	return nil
}
