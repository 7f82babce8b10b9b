// internal/services/locks.go
package services

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/config"
	"github.com/iagallery/iag-backend/internal/keylock"
)

// lockManager wraps the shared keyed locker with the configured bounded
// wait. Lock ordering is fixed across all flows: artwork before ledger,
// order before artwork. Acquiring in that order prevents deadlock between
// concurrent purchase, resale and reconciliation operations.
type lockManager struct {
	locks *keylock.Locker
	wait  time.Duration
}

func newLockManager(locks *keylock.Locker, cfg *config.Config) lockManager {
	return lockManager{
		locks: locks,
		wait:  time.Duration(cfg.Locks.WaitMillis) * time.Millisecond,
	}
}

func (m lockManager) acquire(key string) (func(), error) {
	release, err := m.locks.Acquire(key, m.wait)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return nil, apperrors.Conflict("a concurrent operation is in progress, try again")
		}
		return nil, err
	}
	return release, nil
}

func (m lockManager) lockArtwork(id uuid.UUID) (func(), error) {
	return m.acquire("artwork:" + id.String())
}

func (m lockManager) lockLedger(userID uuid.UUID) (func(), error) {
	return m.acquire("ledger:" + userID.String())
}

func (m lockManager) lockOrder(id uuid.UUID) (func(), error) {
	return m.acquire("order:" + id.String())
}
