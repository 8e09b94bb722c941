// Package idempotency wraps every mutating command in an exactly-once
// executor. Callers race on a single atomic claim per key; the winner
// runs the work, everyone else observes the stored result, an in-progress
// signal, or a conflict when the key is reused with a different payload.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/kori-finance/kori/internal/fault"
)

// State classifies the outcome of ClaimOrLoad.
type State string

const (
	// StateClaimed means the caller owns execution of the work.
	StateClaimed State = "CLAIMED"
	// StateCompleted means the same key+hash already finished; the stored
	// result is returned and the work is not re-run.
	StateCompleted State = "COMPLETED"
	// StateInProgress means another caller currently owns the key; the
	// caller should retry later, never re-execute.
	StateInProgress State = "IN_PROGRESS"
	// StateConflict means the key was reused with a different request
	// hash; the command is rejected, never silently re-executed.
	StateConflict State = "CONFLICT"
)

// Claim is the outcome of the atomic claim-or-load race.
type Claim struct {
	State  State
	Result []byte
}

// Store is the persistence port behind the executor. ClaimOrLoad must be
// atomic with respect to concurrent callers on the same key.
type Store interface {
	ClaimOrLoad(ctx context.Context, key, requestHash string) (Claim, error)
	Complete(ctx context.Context, key, requestHash string, result []byte) error
	Fail(ctx context.Context, key, requestHash string) error
}

// ErrInProgress signals the caller to retry once the owning call settles.
var ErrInProgress = fault.Conflicting("idempotency_in_progress", nil)

// ErrKeyReused rejects a key resubmitted with a different payload.
var ErrKeyReused = fault.Conflicting("idempotency_key_reused", nil)

// ErrKeyRequired rejects mutating commands without an idempotency key.
var ErrKeyRequired = fault.Invalid("idempotency_key_required", nil)

// Executor coordinates the claim/complete/fail protocol around a store.
type Executor struct {
	store  Store
	logger *slog.Logger
}

// NewExecutor builds an executor over the given store.
func NewExecutor(store Store, logger *slog.Logger) *Executor {
	return &Executor{store: store, logger: logger}
}

// RequestHash digests a request payload for key-reuse detection.
func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Execute runs work at most once per (key, requestHash). The stored
// result is JSON, so T must round-trip through encoding/json. A failure
// inside work releases the claim best-effort; that release can itself
// fail, but it never masks the original error.
func Execute[T any](ctx context.Context, ex *Executor, key, requestHash string, work func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if key == "" {
		return zero, ErrKeyRequired
	}

	claim, err := ex.store.ClaimOrLoad(ctx, key, requestHash)
	if err != nil {
		return zero, err
	}

	switch claim.State {
	case StateCompleted:
		var result T
		if err := json.Unmarshal(claim.Result, &result); err != nil {
			return zero, fault.Internal("idempotency_result_corrupt", map[string]string{"key": key})
		}
		return result, nil
	case StateInProgress:
		return zero, ErrInProgress
	case StateConflict:
		return zero, ErrKeyReused
	}

	result, err := work(ctx)
	if err != nil {
		if failErr := ex.store.Fail(ctx, key, requestHash); failErr != nil {
			ex.logger.Warn("idempotency claim release failed",
				slog.String("key", key), slog.Any("error", failErr))
		}
		return zero, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		if failErr := ex.store.Fail(ctx, key, requestHash); failErr != nil {
			ex.logger.Warn("idempotency claim release failed",
				slog.String("key", key), slog.Any("error", failErr))
		}
		return zero, fault.Internal("idempotency_result_encoding", map[string]string{"key": key})
	}
	if err := ex.store.Complete(ctx, key, requestHash, encoded); err != nil {
		return zero, err
	}
	return result, nil
}
