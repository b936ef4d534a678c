package consulkv_test

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"

	"gossips/internal/channel/consulkv"
)

// fakeKV is an in-memory stand-in for Consul KV with blocking-query
// semantics: a read with WaitIndex blocks until the index moves past it.
type fakeKV struct {
	mu      sync.Mutex
	index   uint64
	pairs   map[string]*api.KVPair
	changed chan struct{}
}

func newFakeKV() *fakeKV {
	return &fakeKV{index: 1, pairs: make(map[string]*api.KVPair), changed: make(chan struct{})}
}

// bump advances the index and wakes blocked readers; callers hold f.mu.
func (f *fakeKV) bump() uint64 {
	f.index++
	close(f.changed)
	f.changed = make(chan struct{})
	return f.index
}

func (f *fakeKV) block(q *api.QueryOptions) {
	if q == nil || q.WaitIndex == 0 {
		return
	}
	timeout := time.After(q.WaitTime)
	for {
		f.mu.Lock()
		if f.index > q.WaitIndex {
			f.mu.Unlock()
			return
		}
		ch := f.changed
		f.mu.Unlock()
		select {
		case <-ch:
		case <-q.Context().Done():
			return
		case <-timeout:
			return
		}
	}
}

func (f *fakeKV) Put(p *api.KVPair, _ *api.WriteOptions) (*api.WriteMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(p)
	return &api.WriteMeta{}, nil
}

func (f *fakeKV) put(p *api.KVPair) {
	idx := f.bump()
	stored := &api.KVPair{Key: p.Key, Value: append([]byte(nil), p.Value...), ModifyIndex: idx, CreateIndex: idx}
	if old, ok := f.pairs[p.Key]; ok {
		stored.CreateIndex = old.CreateIndex
	}
	f.pairs[p.Key] = stored
}

func (f *fakeKV) CAS(p *api.KVPair, _ *api.WriteOptions) (bool, *api.WriteMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.pairs[p.Key]
	if (p.ModifyIndex == 0 && ok) || (p.ModifyIndex != 0 && (!ok || old.ModifyIndex != p.ModifyIndex)) {
		return false, &api.WriteMeta{}, nil
	}
	f.put(p)
	return true, &api.WriteMeta{}, nil
}

func (f *fakeKV) Get(key string, q *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error) {
	f.block(q)
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := &api.QueryMeta{LastIndex: f.index}
	p, ok := f.pairs[key]
	if !ok {
		return nil, meta, nil
	}
	cp := *p
	return &cp, meta, nil
}

func (f *fakeKV) List(prefix string, q *api.QueryOptions) (api.KVPairs, *api.QueryMeta, error) {
	f.block(q)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out api.KVPairs
	for k, p := range f.pairs {
		if strings.HasPrefix(k, prefix) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, &api.QueryMeta{LastIndex: f.index}, nil
}

func (f *fakeKV) Delete(key string, _ *api.WriteOptions) (*api.WriteMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pairs[key]; ok {
		delete(f.pairs, key)
		f.bump()
	}
	return &api.WriteMeta{}, nil
}

func (f *fakeKV) DeleteTree(prefix string, _ *api.WriteOptions) (*api.WriteMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := false
	for k := range f.pairs {
		if strings.HasPrefix(k, prefix) {
			delete(f.pairs, k)
			removed = true
		}
	}
	if removed {
		f.bump()
	}
	return &api.WriteMeta{}, nil
}

func (f *fakeKV) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.pairs {
		out = append(out, k)
	}
	return out
}

var _ consulkv.KV = (*fakeKV)(nil)
