package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/letletme/internal/logging"
)

// ErrWriteRejected is returned for any command outside the read allow-list
// sent through the read-only data connection. It signals a misconfigured caller and is never
// swallowed.
var ErrWriteRejected = errors.New("store: write rejected on read-only data connection")

// readCommands is the allow-list enforced by readOnlyHook: the reads the
// services issue plus the connection handshake. Everything else, writes
// and admin commands included, is rejected.
var readCommands = map[string]struct{}{
	"hello": {}, "auth": {}, "select": {}, "client": {}, "ping": {}, "echo": {},
	"get": {}, "mget": {}, "exists": {}, "type": {}, "ttl": {}, "pttl": {},
	"hget": {}, "hgetall": {}, "hmget": {}, "hkeys": {}, "hvals": {}, "hlen": {}, "hexists": {},
	"smembers": {}, "sismember": {}, "scard": {},
	"zrange": {}, "zscore": {}, "zcard": {},
	"lrange": {}, "llen": {},
}

func isReadCommand(name string) bool {
	_, ok := readCommands[strings.ToLower(name)]
	return ok
}

// readOnlyHook rejects every command outside readCommands before it
// reaches the server.
type readOnlyHook struct{}

func (readOnlyHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (readOnlyHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if err := rejectWrite(cmd); err != nil {
			return err
		}
		return next(ctx, cmd)
	}
}

func (readOnlyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if err := rejectWrite(cmd); err != nil {
				for _, c := range cmds {
					c.SetErr(err)
				}
				return err
			}
		}
		return next(ctx, cmds)
	}
}

func rejectWrite(cmd redis.Cmder) error {
	if isReadCommand(cmd.Name()) {
		return nil
	}
	err := fmt.Errorf("%w: %s", ErrWriteRejected, strings.ToUpper(cmd.Name()))
	cmd.SetErr(err)
	logging.Op().Error("write attempted on data redis", "command", cmd.Name(), "args", len(cmd.Args()))
	return err
}

// DataStore is a read-only view of the data Redis populated by the
// ingestion pipeline.
type DataStore struct {
	client *redis.Client
}

// NewDataStore connects to the data Redis and verifies connectivity.
func NewDataStore(ctx context.Context, addr, password string, db int) (*DataStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("data redis connection failed: %w", err)
	}

	return NewDataStoreFromClient(client), nil
}

// NewDataStoreFromClient wraps an existing client. The client is made
// read-only: every later command outside readCommands fails with
// ErrWriteRejected.
func NewDataStoreFromClient(client *redis.Client) *DataStore {
	client.AddHook(readOnlyHook{})
	return &DataStore{client: client}
}

func (s *DataStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying (read-only) Redis client
func (s *DataStore) Client() *redis.Client {
	return s.client
}

// Ping checks Redis connectivity
func (s *DataStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// HGetAll returns every field of a hash. A missing key yields an empty map.
func (s *DataStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return m, nil
}

// HGet returns one hash field; ok is false when the field is missing.
func (s *DataStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s %s: %w", key, field, err)
	}
	return v, true, nil
}

// SMembers returns the members of a set. A missing key yields an empty slice.
func (s *DataStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}
