// Package snapshot delivers full-collection snapshots to registered listeners
// after a write commits.
package snapshot

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"faturas/internal/core"
	"faturas/internal/storage"
)

// Listener receives the full, freshly loaded collection. Only the field of
// snap matching collection is populated.
type Listener func(collection core.Collection, snap core.Dataset)

// Unsubscribe detaches a listener. Calling it more than once is harmless.
type Unsubscribe func()

type key struct {
	userID     string
	collection core.Collection
}

type entry struct {
	id uint64
	fn Listener
}

// Hub fans collection changes out to listeners. Deliveries are serialized:
// a listener never runs concurrently with another delivery of the same hub.
type Hub struct {
	reader storage.Reader
	logger *slog.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners map[key][]entry

	dispatch sync.Mutex
}

func NewHub(reader storage.Reader, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		reader:    reader,
		logger:    logger,
		listeners: make(map[key][]entry),
	}
}

// Subscribe registers fn for one collection of one user.
func (h *Hub) Subscribe(userID string, c core.Collection, fn Listener) Unsubscribe {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	k := key{userID, c}
	h.listeners[k] = append(h.listeners[k], entry{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(k, id) })
	}
}

func (h *Hub) remove(k key, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := slices.DeleteFunc(h.listeners[k], func(e entry) bool { return e.id == id })
	if len(list) == 0 {
		delete(h.listeners, k)
		return
	}
	h.listeners[k] = list
}

// Listeners counts the listeners of a user across all collections.
func (h *Hub) Listeners(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for k, list := range h.listeners {
		if k.userID == userID {
			n += len(list)
		}
	}
	return n
}

// Notify reloads each changed collection and delivers it to its listeners in
// registration order. Collections nobody listens to are not reloaded.
func (h *Hub) Notify(ctx context.Context, userID string, collections ...core.Collection) {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	for _, c := range collections {
		h.mu.Lock()
		list := slices.Clone(h.listeners[key{userID, c}])
		h.mu.Unlock()
		if len(list) == 0 {
			continue
		}

		snap, err := h.reader.LoadCollection(ctx, userID, c)
		if err != nil {
			h.logger.ErrorContext(ctx, "Failed to reload collection for listeners",
				"user_id", userID,
				"collection", c,
				"error", err)
			continue
		}
		for _, e := range list {
			e.fn(c, snap)
		}
	}
}
