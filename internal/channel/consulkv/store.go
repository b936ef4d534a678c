package consulkv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/consul/api"

	"gossips/internal/domain"
	"gossips/internal/logger"
)

const (
	defaultPrefix   = "gossips/"
	defaultWaitTime = 10 * time.Second
)

// KV is the subset of *api.KV the store uses.
type KV interface {
	Put(p *api.KVPair, q *api.WriteOptions) (*api.WriteMeta, error)
	CAS(p *api.KVPair, q *api.WriteOptions) (bool, *api.WriteMeta, error)
	Get(key string, q *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
	List(prefix string, q *api.QueryOptions) (api.KVPairs, *api.QueryMeta, error)
	Delete(key string, w *api.WriteOptions) (*api.WriteMeta, error)
	DeleteTree(prefix string, w *api.WriteOptions) (*api.WriteMeta, error)
}

// Config describes the Consul agent and the key prefix holding the tree.
type Config struct {
	Address  string
	Token    string
	Prefix   string
	WaitTime time.Duration
}

// Store keeps the tree under a key prefix in Consul KV. Subscriptions are
// blocking queries that report distinct snapshots only; a write reverted
// before the next query returns is not seen, so writers of short-lived flags
// hold them until they observe them on their own watch.
type Store struct {
	kv     KV
	prefix string
	wait   time.Duration
}

// Connect builds a client for cfg and checks that the cluster has a leader.
func Connect(cfg Config) (*Store, error) {
	clientConfig := api.DefaultConfig()
	if cfg.Address != "" {
		clientConfig.Address = cfg.Address
	}
	clientConfig.Token = cfg.Token

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("connect to consul %s: %w", clientConfig.Address, err)
	}
	logger.Info("Connected to Consul KV", "address", clientConfig.Address, "prefix", cfg.Prefix)
	return New(client.KV(), cfg.Prefix, cfg.WaitTime), nil
}

// New wraps a KV client. An empty prefix defaults to "gossips/".
func New(kv KV, prefix string, wait time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if wait <= 0 {
		wait = defaultWaitTime
	}
	return &Store{kv: kv, prefix: prefix, wait: wait}
}

func (s *Store) Put(ctx context.Context, path string, value []byte) error {
	_, err := s.kv.Put(&api.KVPair{Key: s.key(path), Value: value}, s.writeOpts(ctx))
	return domain.NewChannelError("put", path, err)
}

// Create relies on check-and-set with index 0, which only succeeds for a
// key that does not exist.
func (s *Store) Create(ctx context.Context, path string, value []byte) error {
	ok, _, err := s.kv.CAS(&api.KVPair{Key: s.key(path), Value: value, ModifyIndex: 0}, s.writeOpts(ctx))
	if err != nil {
		return domain.NewChannelError("create", path, err)
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", domain.NewChannelError("push", path, err)
	}
	child := id.String()
	if err := s.Put(ctx, domain.JoinPath(path, child), value); err != nil {
		return "", err
	}
	return child, nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	pair, _, err := s.kv.Get(s.key(path), s.queryOpts(ctx, 0))
	if err != nil {
		return nil, false, domain.NewChannelError("get", path, err)
	}
	if pair == nil {
		return nil, false, nil
	}
	return pair.Value, true, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	key := s.key(path)
	if _, err := s.kv.Delete(key, s.writeOpts(ctx)); err != nil {
		return domain.NewChannelError("remove", path, err)
	}
	if _, err := s.kv.DeleteTree(key+"/", s.writeOpts(ctx)); err != nil {
		return domain.NewChannelError("remove", path, err)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, path string) (<-chan domain.Event, error) {
	key := s.key(path)
	out := make(chan domain.Event)
	go func() {
		defer close(out)
		var (
			index      uint64
			first      = true
			lastExists bool
			lastModify uint64
		)
		for {
			pair, meta, err := s.kv.Get(key, s.queryOpts(ctx, index))
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				select {
				case out <- domain.Event{Path: path, Err: domain.NewChannelError("watch", path, err)}:
				case <-ctx.Done():
				}
				return
			}
			index = nextIndex(index, meta)

			exists := pair != nil
			var modify uint64
			if exists {
				modify = pair.ModifyIndex
			}
			if !first && exists == lastExists && modify == lastModify {
				continue
			}
			first, lastExists, lastModify = false, exists, modify

			ev := domain.Event{Path: path, Exists: exists}
			if exists {
				ev.Value = pair.Value
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) WatchChildren(ctx context.Context, path string) (<-chan domain.Child, error) {
	parent := s.key(path) + "/"
	out := make(chan domain.Child)
	go func() {
		defer close(out)
		var index uint64
		known := make(map[string]bool)
		for {
			pairs, meta, err := s.kv.List(parent, s.queryOpts(ctx, index))
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				select {
				case out <- domain.Child{Err: domain.NewChannelError("watch-children", path, err)}:
				case <-ctx.Done():
				}
				return
			}
			index = nextIndex(index, meta)

			sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].CreateIndex < pairs[j].CreateIndex })
			for _, p := range pairs {
				child := strings.TrimPrefix(p.Key, parent)
				if child == "" || strings.Contains(child, "/") || known[child] {
					continue
				}
				known[child] = true
				select {
				case out <- domain.Child{Key: child, Value: p.Value}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) key(path string) string { return s.prefix + path }

func (s *Store) writeOpts(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}

func (s *Store) queryOpts(ctx context.Context, index uint64) *api.QueryOptions {
	return (&api.QueryOptions{WaitIndex: index, WaitTime: s.wait}).WithContext(ctx)
}

// nextIndex follows Consul's blocking-query rules: an index that goes
// backwards (snapshot restore) resets the wait to a fresh read.
func nextIndex(prev uint64, meta *api.QueryMeta) uint64 {
	if meta == nil || meta.LastIndex < prev {
		return 0
	}
	return meta.LastIndex
}

var _ domain.Channel = (*Store)(nil)
var _ KV = (*api.KV)(nil)
