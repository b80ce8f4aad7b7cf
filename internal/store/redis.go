package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "bankd:v1:"

// RedisStore keeps each document in a hash holding its version and JSON body,
// plus a set per collection listing member refs. Conditional writes rely on
// WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func docKey(collection, ref string) string {
	return redisPrefix + "doc:" + collectionName(collection) + ":" + ref
}

func setKey(collection string) string {
	return redisPrefix + "refs:" + collectionName(collection)
}

// Get fetches a document.
func (s *RedisStore) Get(ctx context.Context, collection, ref string) (Document, error) {
	fields, err := s.client.HGetAll(ctx, docKey(collection, ref)).Result()
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", ref, err)
	}
	return decodeHash(ref, fields)
}

// Create stores a document at version 1 if the ref is free.
func (s *RedisStore) Create(ctx context.Context, collection, ref string, data []byte) error {
	key := docKey(collection, ref)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "version", 1, "data", string(data))
			pipe.SAdd(ctx, setKey(collection), ref)
			return nil
		})
		return err
	}, key)
	return classify(ref, "create", err)
}

// Update replaces a document if its stored version is expectedVersion.
func (s *RedisStore) Update(ctx context.Context, collection, ref string, expectedVersion int, data []byte) error {
	key := docKey(collection, ref)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, "version").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("malformed version %q", raw)
		}
		if current != expectedVersion {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "version", expectedVersion+1, "data", string(data))
			return nil
		})
		return err
	}, key)
	return classify(ref, "update", err)
}

// Query scans the collection's members and evaluates q against each one.
func (s *RedisStore) Query(ctx context.Context, collection string, q Query, max int) ([]Document, error) {
	refs, err := s.client.SMembers(ctx, setKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	sort.Strings(refs)

	var out []Document
	for _, ref := range refs {
		if max > 0 && len(out) >= max {
			break
		}
		doc, err := s.Get(ctx, collection, ref)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if q.Matches(doc.Data) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeHash(ref string, fields map[string]string) (Document, error) {
	if len(fields) == 0 {
		return Document{}, ErrNotFound
	}
	version, err := strconv.Atoi(fields["version"])
	if err != nil {
		return Document{}, fmt.Errorf("get %s: malformed version %q", ref, fields["version"])
	}
	return Document{Ref: ref, Version: version, Data: []byte(fields["data"])}, nil
}

func classify(ref, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrExists):
		return err
	default:
		return fmt.Errorf("%s %s: %w", op, ref, err)
	}
}
