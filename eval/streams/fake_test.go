package streams

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// fakeStream is one in-memory stream with the number of entries each
// consumer group has been delivered.
type fakeStream struct {
	entries []redis.XMessage
	groups  map[string]int
}

// fakeRedis serves the stream commands from memory and records group
// lifecycle and read batches.
type fakeRedis struct {
	streams map[string]*fakeStream

	infoErr error
	readErr error

	created   []string
	destroyed []string
	batches   []int
	xreadFrom []string
}

var _ Commands = (*fakeRedis)(nil)

func newFakeRedis() *fakeRedis {
	return &fakeRedis{streams: map[string]*fakeStream{}}
}

// add appends n entries to key, creating the stream.
func (f *fakeRedis) add(key string, n int) {
	s, ok := f.streams[key]
	if !ok {
		s = &fakeStream{groups: map[string]int{}}
		f.streams[key] = s
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d-0", len(s.entries)+1)
		s.entries = append(s.entries, redis.XMessage{ID: id, Values: map[string]interface{}{"event": id}})
	}
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.streams[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) XLen(ctx context.Context, stream string) *redis.IntCmd {
	s, ok := f.streams[stream]
	if !ok {
		return redis.NewIntResult(0, nil)
	}
	return redis.NewIntResult(int64(len(s.entries)), nil)
}

func (f *fakeRedis) XGroupCreate(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	s, ok := f.streams[stream]
	if !ok {
		return redis.NewStatusResult("", replyError("ERR The XGROUP subcommand requires the key to exist"))
	}
	s.groups[group] = 0
	f.created = append(f.created, group)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) XGroupDestroy(ctx context.Context, stream, group string) *redis.IntCmd {
	delete(f.streams[stream].groups, group)
	f.destroyed = append(f.destroyed, group)
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	if f.readErr != nil {
		return redis.NewXStreamSliceCmdResult(nil, f.readErr)
	}
	key := a.Streams[0]
	s := f.streams[key]
	pos := s.groups[a.Group]
	end := pos + int(a.Count)
	if end > len(s.entries) {
		end = len(s.entries)
	}
	if pos == end {
		return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
	}
	s.groups[a.Group] = end
	f.batches = append(f.batches, end-pos)
	return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: key, Messages: s.entries[pos:end]}}, nil)
}

func (f *fakeRedis) XInfoGroups(ctx context.Context, key string) *redis.XInfoGroupsCmd {
	cmd := redis.NewXInfoGroupsCmd(ctx, key)
	if f.infoErr != nil {
		cmd.SetErr(f.infoErr)
		return cmd
	}
	s, ok := f.streams[key]
	if !ok {
		cmd.SetErr(replyError("ERR no such key"))
		return cmd
	}
	var groups []redis.XInfoGroup
	for name, pos := range s.groups {
		last := "0-0"
		if pos > 0 {
			last = s.entries[pos-1].ID
		}
		groups = append(groups, redis.XInfoGroup{Name: name, LastDeliveredID: last})
	}
	cmd.SetVal(groups)
	return cmd
}

func (f *fakeRedis) XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd {
	if f.readErr != nil {
		return redis.NewXStreamSliceCmdResult(nil, f.readErr)
	}
	key, from := a.Streams[0], a.Streams[1]
	f.xreadFrom = append(f.xreadFrom, from)
	s := f.streams[key]
	pos := 0
	for i, e := range s.entries {
		if e.ID == from {
			pos = i + 1
		}
	}
	if pos == len(s.entries) {
		return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
	}
	return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: key, Messages: s.entries[pos:]}}, nil)
}

func (f *fakeRedis) Close() error { return nil }
