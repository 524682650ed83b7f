package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// globEscaper quotes the characters SCAN MATCH treats as pattern syntax.
var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

// RedisStore keeps the namespace registry in a Redis set and the entries of
// each namespace under "<prefix>ns:<name>:".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. prefix scopes every key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// DialRedisStore parses a redis:// URL and verifies the connection.
func DialRedisStore(ctx context.Context, rawURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) registryKey() string {
	return s.prefix + "namespaces"
}

// EntryKey returns the key under which key is stored inside namespace name.
func (s *RedisStore) EntryKey(name, key string) string {
	return s.prefix + "ns:" + name + ":" + key
}

func (s *RedisStore) Namespaces(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	sort.Strings(names)

	return names, nil
}

func (s *RedisStore) Open(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyNamespace
	}

	if err := s.client.SAdd(ctx, s.registryKey(), name).Err(); err != nil {
		return fmt.Errorf("open namespace %q: %w", name, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	pattern := globEscaper.Replace(s.EntryKey(name, "")) + "*"

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan namespace %q: %w", name, err)
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete entries of %q: %w", name, err)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := s.client.SRem(ctx, s.registryKey(), name).Err(); err != nil {
		return fmt.Errorf("unregister namespace %q: %w", name, err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
