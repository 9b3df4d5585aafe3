// Package session holds the application state of signed-in users: their
// plan flags and a live copy of every collection, kept current by snapshot
// listeners between sign-in and sign-out.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"faturas/internal/core"
	"faturas/internal/snapshot"
	"faturas/internal/storage"
)

// State is one user's application state. It is created on sign-in by Init
// and released on sign-out by Teardown.
type State struct {
	userID string

	mu       sync.RWMutex
	ds       core.Dataset
	profile  core.Profile
	version  uint64
	lastSeen time.Time
	unsubs   []snapshot.Unsubscribe
	closed   bool
}

// Init loads the profile and every collection concurrently and subscribes to
// further changes. Listeners are registered before loading so no change
// committed meanwhile is missed.
func Init(ctx context.Context, userID string, reader storage.Reader, hub *snapshot.Hub) (*State, error) {
	s := &State{userID: userID, lastSeen: time.Now()}
	fresh := make(map[core.Collection]bool)

	if hub != nil {
		for _, c := range core.AllCollections {
			s.unsubs = append(s.unsubs, hub.Subscribe(userID, c, func(c core.Collection, snap core.Dataset) {
				s.mu.Lock()
				fresh[c] = true
				s.mu.Unlock()
				s.apply(c, snap)
			}))
		}
	}

	parts := make([]core.Dataset, len(core.AllCollections))
	var profile core.Profile

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := reader.GetProfile(gctx, userID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		profile = p
		return nil
	})
	for i, c := range core.AllCollections {
		g.Go(func() error {
			part, err := reader.LoadCollection(gctx, userID, c)
			if err != nil {
				return err
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.Teardown()
		return nil, fmt.Errorf("init session for %s: %w", userID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	for i, c := range core.AllCollections {
		if !fresh[c] {
			s.ds.Merge(c, parts[i])
		}
	}
	s.version++
	s.ds.Version = s.version
	return s, nil
}

// apply replaces one collection with a newer snapshot.
func (s *State) apply(c core.Collection, snap core.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ds.Merge(c, snap)
	s.version++
	s.ds.Version = s.version
}

func (s *State) UserID() string {
	return s.userID
}

// Dataset returns a copy of the current snapshot set. Its Version increases
// with every applied change.
func (s *State) Dataset() core.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds.Clone()
}

func (s *State) Profile() core.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// SetProfile replaces the plan flags, e.g. after a confirmed upgrade.
func (s *State) SetProfile(p core.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Touch records activity so the manager keeps the state alive.
func (s *State) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *State) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Teardown detaches every listener. Later snapshots are ignored.
func (s *State) Teardown() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.closed = true
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}
