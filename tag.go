package vs

import (
	"context"
	"sort"
	"sync"
)

// TagGetter is a read-only TagStore (qv).
type TagGetter interface {
	// GetTag returns the key the named tag points to.
	// It returns ErrNotFound if the tag does not exist.
	GetTag(context.Context, string) (Key, error)

	// ListTags calls a function for each tag in lexicographic order,
	// beginning with the first name _after_ the specified one.
	// If the callback returns an error,
	// ListTags exits with that error.
	ListTags(context.Context, string, func(string, Key) error) error
}

// TagStore is a set of mutable names ("tags") pointing to keys.
// It is the only mutable state in the system,
// so its single write operation must be linearizable.
type TagStore interface {
	TagGetter

	// TestAndSet changes the tag name from old to new,
	// but only if it currently points to old.
	// A nil old means the tag must not exist;
	// a nil new deletes it.
	// The boolean result tells whether the change was made.
	TestAndSet(ctx context.Context, name string, old, new *Key) (bool, error)

	// Watch registers f to be called after each change to the named tag
	// (or to any tag, if name is "").
	// It returns a function that unregisters f.
	Watch(name string, f WatchFunc) (cancel func())
}

// WatchFunc is the type of a tag-change callback.
// A nil old means the tag was created,
// a nil new that it was deleted.
type WatchFunc func(name string, old, new *Key)

// Watchers is a registry of WatchFuncs.
// TagStore implementations embed one,
// implement Watch with Add,
// and call Notify after each successful TestAndSet.
// The zero value is ready to use.
type Watchers struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]watcher
}

type watcher struct {
	name string
	f    WatchFunc
}

// Add registers f for changes to the named tag, or to all tags if name is "".
func (w *Watchers) Add(name string, f WatchFunc) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.byID == nil {
		w.byID = make(map[int]watcher)
	}
	id := w.nextID
	w.nextID++
	w.byID[id] = watcher{name: name, f: f}

	return func() {
		w.mu.Lock()
		delete(w.byID, id)
		w.mu.Unlock()
	}
}

// Notify calls every WatchFunc registered for name,
// in registration order.
// Callbacks run outside the registry lock,
// so they may themselves call Add or a cancel function.
func (w *Watchers) Notify(name string, old, new *Key) {
	w.mu.Lock()
	var (
		ids []int
		fs  = make(map[int]WatchFunc)
	)
	for id, wt := range w.byID {
		if wt.name == "" || wt.name == name {
			ids = append(ids, id)
			fs[id] = wt.f
		}
	}
	w.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		fs[id](name, old, new)
	}
}
