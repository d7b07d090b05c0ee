// Package streams reads the message-bus streams of the system under test.
package streams

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of entries fetched per XREADGROUP call.
const DefaultBatchSize = 1000

// Entry is one stream entry.
type Entry struct {
	ID     string
	Values map[string]interface{}
}

// Reader returns every entry of a stream.
type Reader interface {
	ReadAll(ctx context.Context, key string) ([]Entry, error)
}

// Sizer reports how many entries of a stream are still waiting for the
// system's consumer group.
type Sizer interface {
	PendingSize(ctx context.Context, key string) (int64, error)
}

// Commands is the subset of the Redis client the stream readers use.
// *redis.Client implements it.
type Commands interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	XLen(ctx context.Context, stream string) *redis.IntCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XGroupCreate(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XGroupDestroy(ctx context.Context, stream, group string) *redis.IntCmd
	XInfoGroups(ctx context.Context, key string) *redis.XInfoGroupsCmd
	Close() error
}

// Redis reads streams from a Redis server.
type Redis struct {
	client    Commands
	batchSize int64
}

var (
	_ Reader = (*Redis)(nil)
	_ Sizer  = (*Redis)(nil)
)

// NewRedis connects to the Redis server at address:port.
func NewRedis(address, port string) *Redis {
	return NewRedisFromClient(redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort(address, port),
	}))
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client Commands) *Redis {
	return &Redis{client: client, batchSize: DefaultBatchSize}
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// ReadAll reads the stream from its first entry through a throw-away
// consumer group, so the system's own groups are left untouched. A missing
// key reads as an empty stream and is not created.
func (r *Redis) ReadAll(ctx context.Context, key string) ([]Entry, error) {
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("checking stream %s: %w", key, err)
	}
	if exists == 0 {
		logrus.Debugf("stream %s does not exist", key)
		return nil, nil
	}

	group := "benchmark-tools-" + uuid.NewString()
	consumer := uuid.NewString()
	if err := r.client.XGroupCreate(ctx, key, group, "0").Err(); err != nil {
		return nil, fmt.Errorf("creating consumer group on %s: %w", key, err)
	}
	defer func() {
		if err := r.client.XGroupDestroy(context.WithoutCancel(ctx), key, group).Err(); err != nil {
			logrus.Warnf("destroying consumer group %s on %s: %v", group, key, err)
		}
	}()

	var entries []Entry
	for {
		res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{key, ">"},
			Count:    r.batchSize,
			Block:    -1,
			NoAck:    true,
		}).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading stream %s: %w", key, err)
		}
		n := 0
		for _, stream := range res {
			for _, msg := range stream.Messages {
				entries = append(entries, Entry{ID: msg.ID, Values: msg.Values})
				n++
			}
		}
		if n == 0 {
			break
		}
	}
	logrus.Debugf("read %d entries from stream %s", len(entries), key)
	return entries, nil
}

// SystemGroup is the consumer group name services use on a stream.
func SystemGroup(key string) string {
	return "cg-" + key
}

// PendingSize returns the entries not yet delivered to the stream's system
// consumer group. Without that group, or on a server-side error, it falls
// back to the stream length.
func (r *Redis) PendingSize(ctx context.Context, key string) (int64, error) {
	length, err := r.client.XLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring stream %s: %w", key, err)
	}

	groups, err := r.client.XInfoGroups(ctx, key).Result()
	if err != nil {
		if isServerError(err) {
			return length, nil
		}
		return 0, fmt.Errorf("listing consumer groups of %s: %w", key, err)
	}
	var lastDelivered string
	for _, g := range groups {
		if g.Name == SystemGroup(key) {
			lastDelivered = g.LastDeliveredID
			break
		}
	}
	if lastDelivered == "" {
		return length, nil
	}

	res, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{key, lastDelivered},
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		if isServerError(err) {
			return length, nil
		}
		return 0, fmt.Errorf("reading undelivered entries of %s: %w", key, err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return int64(len(res[0].Messages)), nil
}

// isServerError reports whether err is a reply error from Redis rather than
// a transport failure.
func isServerError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && !strings.HasPrefix(err.Error(), "redis: ")
}

// Field returns a field of the entry as a string.
func (e Entry) Field(name string) (string, bool) {
	v, ok := e.Values[name]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return fmt.Sprint(s), true
	}
}
