package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"gossips/internal/domain"
)

// Store is an in-process shared tree. One Store is handed to every peer that
// should see the same state, the way two devices share one remote database.
// Values are stored at leaf paths only.
type Store struct {
	mu       sync.Mutex
	data     map[string]entry
	seq      uint64
	watchers map[*watcher]struct{}
	offline  error
}

type entry struct {
	value []byte
	seq   uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		data:     make(map[string]entry),
		watchers: make(map[*watcher]struct{}),
	}
}

// Put overwrites the value at path.
func (s *Store) Put(ctx context.Context, path string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "put", path); err != nil {
		return err
	}
	s.set(path, value)
	return nil
}

// Create writes value only when path is absent.
func (s *Store) Create(ctx context.Context, path string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create", path); err != nil {
		return err
	}
	if _, ok := s.data[path]; ok {
		return domain.ErrAlreadyExists
	}
	s.set(path, value)
	return nil
}

// Push stores value under a new UUIDv7 child key of path.
func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "push", path); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", domain.NewChannelError("push", path, err)
	}
	key := id.String()
	s.set(domain.JoinPath(path, key), value)
	return key, nil
}

// Get returns a copy of the value at path.
func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "get", path); err != nil {
		return nil, false, err
	}
	e, ok := s.data[path]
	if !ok {
		return nil, false, nil
	}
	return clone(e.value), true, nil
}

// Remove deletes path and all paths below it.
func (s *Store) Remove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "remove", path); err != nil {
		return err
	}
	prefix := path + "/"
	for k := range s.data {
		if k != path && !strings.HasPrefix(k, prefix) {
			continue
		}
		delete(s.data, k)
		for w := range s.watchers {
			if !w.children && w.path == k {
				w.push(domain.Event{Path: k})
			}
		}
	}
	return nil
}

// Watch subscribes to path.
func (s *Store) Watch(ctx context.Context, path string) (<-chan domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "watch", path); err != nil {
		return nil, err
	}
	w := newWatcher(path, false)
	if e, ok := s.data[path]; ok {
		w.push(domain.Event{Path: path, Value: clone(e.value), Exists: true})
	} else {
		w.push(domain.Event{Path: path})
	}
	s.watchers[w] = struct{}{}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		defer s.drop(w)
		w.run(ctx, func(item any) bool {
			ev := item.(domain.Event)
			select {
			case out <- ev:
				return ev.Err == nil
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// WatchChildren subscribes to children added under path.
func (s *Store) WatchChildren(ctx context.Context, path string) (<-chan domain.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "watch-children", path); err != nil {
		return nil, err
	}
	w := newWatcher(path, true)
	for _, c := range s.children(path) {
		w.push(c)
	}
	s.watchers[w] = struct{}{}

	out := make(chan domain.Child)
	go func() {
		defer close(out)
		defer s.drop(w)
		w.run(ctx, func(item any) bool {
			c := item.(domain.Child)
			select {
			case out <- c:
				return c.Err == nil
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// Disconnect ends every open subscription with a ChannelError wrapping err,
// as a dropped connection would.
func (s *Store) Disconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		cerr := domain.NewChannelError("watch", w.path, err)
		if w.children {
			w.push(domain.Child{Err: cerr})
		} else {
			w.push(domain.Event{Path: w.path, Err: cerr})
		}
		delete(s.watchers, w)
	}
}

// SetOffline makes every operation fail with a ChannelError wrapping err
// until called again with nil.
func (s *Store) SetOffline(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = err
}

// Keys lists the stored leaf paths below prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.data {
		if k == prefix || strings.HasPrefix(k, prefix+"/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) check(ctx context.Context, op, path string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewChannelError(op, path, err)
	}
	if s.offline != nil {
		return domain.NewChannelError(op, path, s.offline)
	}
	return nil
}

// set stores value and notifies watchers; callers hold s.mu.
func (s *Store) set(path string, value []byte) {
	_, existed := s.data[path]
	s.seq++
	s.data[path] = entry{value: clone(value), seq: s.seq}

	parent, key := split(path)
	for w := range s.watchers {
		switch {
		case !w.children && w.path == path:
			w.push(domain.Event{Path: path, Value: clone(value), Exists: true})
		case w.children && w.path == parent && !existed:
			w.push(domain.Child{Key: key, Value: clone(value)})
		}
	}
}

func (s *Store) children(path string) []domain.Child {
	type seqChild struct {
		seq uint64
		c   domain.Child
	}
	var found []seqChild
	for k, e := range s.data {
		parent, key := split(k)
		if parent == path {
			found = append(found, seqChild{e.seq, domain.Child{Key: key, Value: clone(e.value)}})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	out := make([]domain.Child, len(found))
	for i := range found {
		out[i] = found[i].c
	}
	return out
}

func (s *Store) drop(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, w)
}

func split(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

var _ domain.Channel = (*Store)(nil)
