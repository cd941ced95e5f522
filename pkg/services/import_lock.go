package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nemaec/nemaec-engine/pkg/database"
)

// ImportLocker serializes schedule imports per facility. Lock blocks until
// the facility is free or ctx is done. The returned context must be used for
// the repository calls made while the lock is held; unlock is idempotent.
type ImportLocker interface {
	Lock(ctx context.Context, facilityID uuid.UUID) (lockedCtx context.Context, unlock func(), err error)
}

var (
	_ ImportLocker = (*memoryImportLocker)(nil)
	_ ImportLocker = (*database.FacilityLocker)(nil)
)

// memoryImportLocker is a per-facility lock for a single process.
type memoryImportLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*facilityLock
}

type facilityLock struct {
	sem     chan struct{}
	waiters int
}

// NewMemoryImportLocker creates an ImportLocker for single-process deployments.
func NewMemoryImportLocker() ImportLocker {
	return &memoryImportLocker{locks: make(map[uuid.UUID]*facilityLock)}
}

func (l *memoryImportLocker) Lock(ctx context.Context, facilityID uuid.UUID) (context.Context, func(), error) {
	l.mu.Lock()
	fl, ok := l.locks[facilityID]
	if !ok {
		fl = &facilityLock{sem: make(chan struct{}, 1)}
		l.locks[facilityID] = fl
	}
	fl.waiters++
	l.mu.Unlock()

	select {
	case fl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(facilityID, fl)
		return nil, nil, ctx.Err()
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			<-fl.sem
			l.release(facilityID, fl)
		})
	}
	return ctx, unlock, nil
}

// release drops one reference and forgets the lock once nobody holds or waits on it.
func (l *memoryImportLocker) release(facilityID uuid.UUID, fl *facilityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fl.waiters--
	if fl.waiters == 0 {
		delete(l.locks, facilityID)
	}
}
