package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"gossips/internal/channel/consulkv"
	"gossips/internal/channel/memory"
	"gossips/internal/channel/natskv"
	"gossips/internal/domain"
	"gossips/internal/logger"
	"gossips/internal/services/peer"
	"gossips/internal/store"
)

// Wire bundles the shared store and local cache built from a Config.
type Wire struct {
	Config  *Config
	Channel domain.Channel
	Cache   domain.PassphraseStore
	Clock   clock.Clock

	closers []func() error
}

// NewWire connects to the configured store backend and opens the cache.
func NewWire(ctx context.Context, cfg *Config) (*Wire, error) {
	w := &Wire{Config: cfg, Clock: clock.New()}

	ch, err := w.openChannel(ctx)
	if err != nil {
		return nil, err
	}
	w.Channel = ch

	cache, err := w.openCache()
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	w.Cache = cache
	return w, nil
}

func (w *Wire) openChannel(ctx context.Context) (domain.Channel, error) {
	cfg := w.Config
	switch cfg.Backend {
	case BackendMemory:
		logger.Warn("Using the in-process store; peers in other processes will not see this room")
		return memory.New(), nil
	case BackendNATS:
		s, err := natskv.Connect(ctx, natskv.Config{
			URL:      cfg.NATS.URL,
			Bucket:   cfg.NATS.Bucket,
			Username: cfg.NATS.Username,
			Password: cfg.NATS.Password,
		})
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, s.Close)
		return s, nil
	case BackendConsul:
		return consulkv.Connect(consulkv.Config{
			Address:  cfg.Consul.Address,
			Token:    cfg.Consul.Token,
			Prefix:   cfg.Consul.Prefix,
			WaitTime: cfg.Consul.WaitTime,
		})
	default:
		return nil, fmt.Errorf("backend %q is not supported", cfg.Backend)
	}
}

func (w *Wire) openCache() (domain.PassphraseStore, error) {
	c := w.Config.Cache
	switch c.Backend {
	case CacheMemory:
		return store.NewMemoryStore(), nil
	case CacheFile:
		return store.NewFileStore(c.Dir, c.Password), nil
	case CacheBadger:
		s, err := store.OpenBadgerStore(c.Dir, c.Password)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("cache backend %q is not supported", c.Backend)
	}
}

// PeerOptions fills peer.Options from the wired dependencies.
func (w *Wire) PeerOptions(self, other domain.PeerID, n domain.Notifier) peer.Options {
	return peer.Options{
		Self:               self,
		Other:              other,
		Channel:            w.Channel,
		Cache:              w.Cache,
		Notifier:           n,
		Clock:              w.Clock,
		NegotiationTimeout: w.Config.NegotiationTimeout,
		WrongKeyGrace:      w.Config.WrongKeyGrace,
		ResubscribeDelay:   w.Config.ResubscribeDelay,
	}
}

// Close releases connections in reverse order of opening.
func (w *Wire) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	w.closers = nil
	return errors.Join(errs...)
}
