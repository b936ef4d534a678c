package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"gossips/internal/domain"
	"gossips/internal/logger"
)

const defaultBucket = "gossips"

// Config describes the NATS connection and the KV bucket holding the tree.
type Config struct {
	URL      string
	Bucket   string
	Username string
	Password string
}

var errWatchStopped = errors.New("watch stopped by server")

// Store maps "/"-joined paths onto keys of a JetStream KV bucket, where "/"
// becomes the subject separator "." so watches can use wildcards. Segment
// bytes outside [-_a-zA-Z0-9] are escaped as "=XX", so any peer id fits.
type Store struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// Connect dials NATS and opens (or creates) the configured bucket. The
// bucket keeps one revision per key so removed values do not linger.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	opts := []nats.Option{
		nats.Name("gossips"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		logger.Warn("KV bucket not found, creating it", "bucket", bucket)
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Shared chat state for gossips peers",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open KV bucket %q: %w", bucket, err)
	}
	logger.Info("Connected to NATS KV", "url", cfg.URL, "bucket", bucket)
	return &Store{nc: nc, kv: kv}, nil
}

// New wraps an already opened bucket.
func New(kv jetstream.KeyValue) *Store { return &Store{kv: kv} }

// Close drains the connection when Store owns it.
func (s *Store) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

func (s *Store) Put(ctx context.Context, path string, value []byte) error {
	key, err := keyFor(path)
	if err != nil {
		return domain.NewChannelError("put", path, err)
	}
	_, err = s.kv.Put(ctx, key, value)
	return domain.NewChannelError("put", path, err)
}

func (s *Store) Create(ctx context.Context, path string, value []byte) error {
	key, err := keyFor(path)
	if err != nil {
		return domain.NewChannelError("create", path, err)
	}
	if _, err := s.kv.Create(ctx, key, value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return domain.ErrAlreadyExists
		}
		return domain.NewChannelError("create", path, err)
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
	key, err := keyFor(path)
	if err != nil {
		return nil, false, domain.NewChannelError("get", path, err)
	}
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewChannelError("get", path, err)
	}
	return entry.Value(), true, nil
}

// Remove purges path and every key below it, dropping their history.
func (s *Store) Remove(ctx context.Context, path string) error {
	key, err := keyFor(path)
	if err != nil {
		return domain.NewChannelError("remove", path, err)
	}
	keys, err := s.keysUnder(ctx, key)
	if err != nil {
		return domain.NewChannelError("remove", path, err)
	}
	keys = append(keys, key)
	for _, k := range keys {
		if err := s.kv.Purge(ctx, k); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return domain.NewChannelError("remove", path, err)
		}
	}
	return nil
}

// keysUnder lists live keys below key by reading a watch's initial values.
func (s *Store) keysUnder(ctx context.Context, key string) ([]string, error) {
	w, err := s.kv.Watch(ctx, key+".>", jetstream.IgnoreDeletes(), jetstream.MetaOnly())
	if err != nil {
		return nil, err
	}
	defer func() { _ = w.Stop() }()

	var keys []string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok {
				return nil, errWatchStopped
			}
			if entry == nil {
				return keys, nil
			}
			keys = append(keys, entry.Key())
		}
	}
}

func (s *Store) Watch(ctx context.Context, path string) (<-chan domain.Event, error) {
	key, err := keyFor(path)
	if err != nil {
		return nil, domain.NewChannelError("watch", path, err)
	}
	w, err := s.kv.Watch(ctx, key)
	if err != nil {
		return nil, domain.NewChannelError("watch", path, err)
	}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()

		send := func(ev domain.Event) bool {
			select {
			case out <- ev:
				return ev.Err == nil
			case <-ctx.Done():
				return false
			}
		}
		seen := false
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					send(domain.Event{Path: path, Err: domain.NewChannelError("watch", path, errWatchStopped)})
					return
				}
				if entry == nil {
					// End of initial values: report an absent key once.
					if !seen && !send(domain.Event{Path: path}) {
						return
					}
					seen = true
					continue
				}
				seen = true
				ev := domain.Event{Path: path}
				if entry.Operation() == jetstream.KeyValuePut {
					ev.Value = entry.Value()
					ev.Exists = true
				}
				if !send(ev) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) WatchChildren(ctx context.Context, path string) (<-chan domain.Child, error) {
	key, err := keyFor(path)
	if err != nil {
		return nil, domain.NewChannelError("watch-children", path, err)
	}
	w, err := s.kv.Watch(ctx, key+".*", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, domain.NewChannelError("watch-children", path, err)
	}

	out := make(chan domain.Child)
	go func() {
		defer close(out)
		defer func() { _ = w.Stop() }()

		known := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					select {
					case out <- domain.Child{Err: domain.NewChannelError("watch-children", path, errWatchStopped)}:
					case <-ctx.Done():
					}
					return
				}
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				child := childKey(key, entry.Key())
				if known[child] {
					continue
				}
				known[child] = true
				select {
				case out <- domain.Child{Key: child, Value: entry.Value()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// keyFor converts a "/"-joined path into a KV key.
func keyFor(path string) (string, error) {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			return "", fmt.Errorf("empty segment in path %q", path)
		}
		segments[i] = escapeSegment(seg)
	}
	return strings.Join(segments, "."), nil
}

// childKey strips the parent key and separator from a child's full key and
// undoes the escaping.
func childKey(parent, full string) string {
	return unescapeSegment(strings.TrimPrefix(full, parent+"."))
}

const hexDigits = "0123456789ABCDEF"

func escapeSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if isTokenByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('=')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func unescapeSegment(seg string) string {
	if !strings.Contains(seg, "=") {
		return seg
	}
	out := make([]byte, 0, len(seg))
	for i := 0; i < len(seg); i++ {
		if seg[i] == '=' && i+2 < len(seg) {
			hi, lo := strings.IndexByte(hexDigits, seg[i+1]), strings.IndexByte(hexDigits, seg[i+2])
			if hi >= 0 && lo >= 0 {
				out = append(out, byte(hi<<4|lo))
				i += 2
				continue
			}
		}
		out = append(out, seg[i])
	}
	return string(out)
}

func isTokenByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '_'
}

var _ domain.Channel = (*Store)(nil)
