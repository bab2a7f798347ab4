package cache

import (
	"context"
	"encoding/json"

	"blinkgate.backend/internal/domain/entities"
	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/pkg/redis"
)

// ChallengeStore persists challenges keyed by nonce and tracks the
// used-nonce set that enforces "each nonce honored at most once".
type ChallengeStore struct{}

// NewChallengeStore constructs a ChallengeStore over the shared redis client.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{}
}

func challengeKey(nonce string) string { return "challenge:" + nonce }
func usedNonceKey(nonce string) string { return "used-nonce:" + nonce }

// Put stores a freshly issued challenge under its nonce with the 10 min TTL.
func (s *ChallengeStore) Put(ctx context.Context, challenge *entities.Challenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	return redis.Set(ctx, challengeKey(challenge.Nonce), payload, entities.ChallengeTTL)
}

// Get fetches the challenge for nonce. Returns ErrChallengeInvalid on a
// miss, treated the same as an expired or already-consumed challenge.
func (s *ChallengeStore) Get(ctx context.Context, nonce string) (*entities.Challenge, error) {
	raw, err := redis.Get(ctx, challengeKey(nonce))
	if err != nil || raw == "" {
		return nil, domainerrors.ErrChallengeInvalid
	}
	var challenge entities.Challenge
	if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// MarkUsed binds nonce to one claim for the 1 h replay window.
// It uses a TTL-gated SetNX rather than a set, so the check-and-bind is a
// single atomic write and a concurrent second claim observes "already used".
func (s *ChallengeStore) MarkUsed(ctx context.Context, nonce string) error {
	ok, err := redis.SetNX(ctx, usedNonceKey(nonce), "1", entities.UsedNonceTTL)
	if err != nil {
		return err
	}
	if !ok {
		return domainerrors.ErrChallengeReplayed
	}
	return nil
}

// IsUsed reports whether nonce has already been consumed.
func (s *ChallengeStore) IsUsed(ctx context.Context, nonce string) (bool, error) {
	raw, err := redis.Get(ctx, usedNonceKey(nonce))
	if err != nil {
		return false, nil //nolint:nilerr // miss looks identical to a backend read error here
	}
	return raw != "", nil
}
