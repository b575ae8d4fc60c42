package registry

import (
	"errors"
	"os"
	"sort"
	"sync"

	"github.com/loykin/toystudio/internal/errs"
	"github.com/loykin/toystudio/internal/process"
)

// ErrAlreadyRunning is returned by StartExclusive when a live handle is registered.
var ErrAlreadyRunning = errors.New("Product already running")

// Registry tracks installed products and their optional live process handle.
// Presence of an id means installed; a handle means a launch happened and the
// process may still be alive, which is only known by polling it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// pending holds entries of ids launched while not installed. They join
	// entries only once the launch succeeds.
	pending map[string]*entry
}

// entry guards its handle with mu, held only for reads and swaps. op serializes
// starts and stops of one id and may be held across a launch or a termination.
type entry struct {
	op     sync.Mutex
	mu     sync.Mutex
	handle *process.Handle
}

// Entry is a point-in-time view of one registry record.
type Entry struct {
	ID      string `json:"id"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry), pending: make(map[string]*entry)}
}

// Rebuild marks every subdirectory of appsDir as installed under <dir>+ext, with no handle.
// A missing appsDir leaves the registry unchanged.
func (r *Registry) Rebuild(appsDir, ext string) error {
	des, err := os.ReadDir(appsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errs.IO("scan installed products", appsDir, err)
	}
	for _, de := range des {
		if de.IsDir() {
			r.MarkInstalled(de.Name() + ext)
		}
	}
	return nil
}

// MarkInstalled inserts id with no handle when absent.
func (r *Registry) MarkInstalled(id string) {
	r.mu.Lock()
	r.install(id)
	r.mu.Unlock()
}

// MarkRunning inserts or overwrites the handle of id.
func (r *Registry) MarkRunning(id string, h *process.Handle) {
	r.mu.Lock()
	e := r.install(id)
	r.mu.Unlock()
	e.mu.Lock()
	e.handle = h
	e.mu.Unlock()
}

// StartExclusive runs launch unless a live handle is already registered, and
// registers the handle launch returns. Starts and stops of the same id are
// serialized; other ids and status polls are not blocked.
// An id that was not installed becomes installed only when launch succeeds.
func (r *Registry) StartExclusive(id string, launch func() (*process.Handle, error)) (*process.Handle, error) {
	e := r.lookupOrPend(id)
	e.op.Lock()
	defer e.op.Unlock()
	if e.current().Alive() {
		return nil, ErrAlreadyRunning
	}
	h, err := launch()

	target := e
	r.mu.Lock()
	if r.pending[id] == e {
		delete(r.pending, id)
	}
	if err == nil {
		if cur, ok := r.entries[id]; ok {
			target = cur
		} else {
			r.entries[id] = e
		}
	}
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	target.mu.Lock()
	target.handle = h
	target.mu.Unlock()
	return h, nil
}

func (r *Registry) IsInstalled(id string) bool {
	r.mu.RLock()
	_, ok := r.entries[id]
	r.mu.RUnlock()
	return ok
}

// IsRunning polls the registered handle; an exited process reports false.
func (r *Registry) IsRunning(id string) bool {
	e := r.get(id)
	if e == nil {
		return false
	}
	return e.current().Alive()
}

// Handle returns the registered handle of id, or nil.
func (r *Registry) Handle(id string) *process.Handle {
	e := r.get(id)
	if e == nil {
		return nil
	}
	return e.current()
}

// StopExclusive runs stop on the handle of id. It cannot interleave with
// StartExclusive for the same id, but status polls proceed while stop runs and
// see the process until it exits. The handle is cleared when stop succeeds and
// kept otherwise. It returns the handle it found; nil means there was nothing to
// stop and stop was not called.
func (r *Registry) StopExclusive(id string, stop func(*process.Handle) error) (*process.Handle, error) {
	e := r.get(id)
	if e == nil {
		return nil, nil
	}
	e.op.Lock()
	defer e.op.Unlock()
	h := e.current()
	if h == nil {
		return nil, nil
	}
	if err := stop(h); err != nil {
		return h, err
	}
	e.mu.Lock()
	if e.handle == h {
		e.handle = nil
	}
	e.mu.Unlock()
	return h, nil
}

// Remove drops id and returns the handle it held. The process is not stopped.
func (r *Registry) Remove(id string) *process.Handle {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.current()
}

// IDs returns the installed ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns every entry with its polled running state, sorted by id.
func (r *Registry) Snapshot() []Entry {
	ids := r.IDs()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e := r.get(id)
		if e == nil {
			continue
		}
		h := e.current()
		en := Entry{ID: id, Running: h.Alive()}
		if en.Running {
			en.PID = h.PID()
		}
		out = append(out, en)
	}
	return out
}

func (r *Registry) get(id string) *entry {
	r.mu.RLock()
	e := r.entries[id]
	r.mu.RUnlock()
	return e
}

// install moves a pending entry of id into entries, or creates one. r.mu must be held.
func (r *Registry) install(id string) *entry {
	if e, ok := r.entries[id]; ok {
		return e
	}
	e, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	} else {
		e = &entry{}
	}
	r.entries[id] = e
	return e
}

func (r *Registry) lookupOrPend(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	e, ok := r.pending[id]
	if !ok {
		e = &entry{}
		r.pending[id] = e
	}
	return e
}

func (e *entry) current() *process.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}
