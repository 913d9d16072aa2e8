package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/oauthgate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/oauthgate/pkg/session"

// Cmdable is the subset of go-redis the store uses. [*redis.Client]
// satisfies it; tests supply mocks through [NewRedisStoreFromClient].
type Cmdable interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HExists(ctx context.Context, key, field string) *redis.BoolCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// RedisStore keeps each session in one Redis hash under
// KeyPrefix+id. Every write refreshes the hash's TTL.
//
// RedisStore is safe for concurrent use.
type RedisStore struct {
	cmdable Cmdable
	config  *RedisConfig
	tracer  trace.Tracer
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with a ping.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: Redis is unreachable
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "session: invalid redis configuration")
	}

	var opts *redis.Options
	if cfg.URI != "" {
		var err error
		opts, err = redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidation, "session: failed to parse redis URI")
		}
		opts.PoolSize = cfg.PoolSize
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password.Value(),
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "session: failed to connect to redis")
	}

	return &RedisStore{
		cmdable: rdb,
		config:  &cfg,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// NewRedisStoreFromClient wraps an existing client. cfg may be nil, in
// which case defaults apply.
func NewRedisStoreFromClient(cmdable Cmdable, cfg *RedisConfig) *RedisStore {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	cfg.applyDefaults()
	return &RedisStore{
		cmdable: cmdable,
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
	}
}

// Open implements [Store]. No Redis call is made until the session is
// used.
func (s *RedisStore) Open(_ context.Context, id string) (Session, error) {
	if id == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "session: id must not be empty")
	}
	return &redisSession{store: s, key: s.config.KeyPrefix + id}, nil
}

// Destroy deletes the session with the given ID.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	key := s.config.KeyPrefix + id
	ctx, span := s.startSpan(ctx, "Destroy", key)
	err := s.cmdable.Del(ctx, key).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.SessionStore("destroy", id, err)
	}
	return nil
}

// Health pings Redis, applying [DefaultRedisHealthTimeout] when ctx has no
// deadline.
func (s *RedisStore) Health(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Health", "")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRedisHealthTimeout)
		defer cancel()
	}
	err := s.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "session: redis health check failed")
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.cmdable.Close()
}

func (s *RedisStore) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "session.redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", s.config.DB),
	)
	if key != "" {
		span.SetAttributes(attribute.String("session.key", key))
	}
	return ctx, span
}

// finishSpan records err (if any) and ends the span. A redis.Nil reply is
// a miss, not a failure.
func finishSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type redisSession struct {
	store *RedisStore
	key   string
}

func (r *redisSession) Has(ctx context.Context, field string) (bool, error) {
	ctx, span := r.store.startSpan(ctx, "Has", field)
	ok, err := r.store.cmdable.HExists(ctx, r.key, field).Result()
	finishSpan(span, err)
	if err != nil {
		return false, sserr.SessionStore("has", field, err)
	}
	return ok, nil
}

func (r *redisSession) Get(ctx context.Context, field string) (string, bool, error) {
	ctx, span := r.store.startSpan(ctx, "Get", field)
	val, err := r.store.cmdable.HGet(ctx, r.key, field).Result()
	finishSpan(span, err)
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, sserr.SessionStore("get", field, err)
	}
	return val, true, nil
}

func (r *redisSession) Set(ctx context.Context, field, value string) error {
	ctx, span := r.store.startSpan(ctx, "Set", field)
	err := r.store.cmdable.HSet(ctx, r.key, field, value).Err()
	if err == nil {
		err = r.store.cmdable.Expire(ctx, r.key, r.store.config.TTL).Err()
	}
	finishSpan(span, err)
	if err != nil {
		return sserr.SessionStore("set", field, err)
	}
	return nil
}

func (r *redisSession) Remove(ctx context.Context, field string) error {
	ctx, span := r.store.startSpan(ctx, "Remove", field)
	err := r.store.cmdable.HDel(ctx, r.key, field).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.SessionStore("remove", field, err)
	}
	return nil
}
