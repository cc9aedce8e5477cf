package index

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// pathLocks hands out one mutex per index location so writes to a location
// are serialised while different locations proceed in parallel.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *pathLocks) get(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

// lock acquires the mutex for key and returns its unlock func
func (p *pathLocks) lock(key string) func() {
	l := p.get(key)
	l.Lock()
	return l.Unlock
}

// locationKey normalises a location so "./idx" and "idx/" share a lock.
// Non-path keys such as pgvector corpus names come back cleaned only.
func locationKey(location string) string {
	if abs, err := filepath.Abs(location); err == nil {
		return abs
	}
	return filepath.Clean(location)
}

// writeLock serialises writers to location: first within the process, then
// across processes when the backend's store is a Locker.
func (m *Manager) writeLock(ctx context.Context, key, location string) (func(), error) {
	unlock := m.locks.lock(key)

	store, err := m.backend(location)
	if err != nil {
		unlock()
		return nil, err
	}
	locker, ok := store.(Locker)
	if !ok {
		store.Close()
		return unlock, nil
	}
	release, err := locker.Lock(ctx)
	if err != nil {
		store.Close()
		unlock()
		return nil, err
	}

	return func() {
		if err := release(); err != nil {
			log.Warn().Err(err).Str("index", location).Msg("Failed to release index lock")
		}
		store.Close()
		unlock()
	}, nil
}

// revalidate closes the cached index for key when another process has
// dropped or recreated the location since it was opened. Callers hold the
// write lock.
func (m *Manager) revalidate(ctx context.Context, key, location string) error {
	ix := m.cached(key)
	if ix == nil {
		return nil
	}

	store, err := m.backend(location)
	if err != nil {
		return err
	}
	probe, err := store.Probe(ctx)
	store.Close()
	if err != nil {
		return err
	}
	if probe.State == StateReady && probe.Manifest.CreatedAt.Equal(ix.manifest.CreatedAt) {
		return nil
	}

	log.Info().Str("index", location).Str("state", probe.State.String()).Msg("Index changed by another writer, reopening")
	return ix.Close()
}
