package redisview

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocqrs/eventing"
	"gocqrs/eventing/projection"
)

// fakeRedis 以内存 hash 模拟 HMGET 与比较写入脚本
type fakeRedis struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	evalErr error
	scripts []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]string)}
}

func (f *fakeRedis) HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := make([]interface{}, len(fields))
	if h, ok := f.hashes[key]; ok {
		for i, field := range fields {
			if v, ok := h[field]; ok {
				values[i] = v
			}
		}
	}
	return redis.NewSliceResult(values, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, script)
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	expected := args[0].(string)
	h, exists := f.hashes[keys[0]]
	current, hasVersion := h["version"]
	if (!exists || !hasVersion) && expected != "0" || hasVersion && current != expected {
		return redis.NewCmdResult(int64(0), nil)
	}
	f.hashes[keys[0]] = map[string]string{"version": args[1].(string), "payload": args[2].(string)}
	return redis.NewCmdResult(int64(1), nil)
}

type noteEvent interface {
	eventing.DomainEvent
	isNote()
}

type Noted struct{ Text string }

func (Noted) EventType() string    { return "Noted" }
func (Noted) EventVersion() string { return "1.0" }
func (Noted) isNote()              {}

type notesView struct {
	Notes []string `json:"notes"`
}

func (v *notesView) Update(e *eventing.EventEnvelope[noteEvent]) {
	if n, ok := e.Payload.(Noted); ok {
		v.Notes = append(v.Notes, n.Text)
	}
}

func newNotesView() *notesView { return &notesView{} }

func envelopes(id string, from uint64, texts ...string) []eventing.EventEnvelope[noteEvent] {
	out := make([]eventing.EventEnvelope[noteEvent], 0, len(texts))
	for i, text := range texts {
		out = append(out, eventing.EventEnvelope[noteEvent]{
			AggregateType: "notebook",
			AggregateID:   id,
			Sequence:      from + uint64(i),
			Payload:       Noted{Text: text},
		})
	}
	return out
}

func TestRepository_InsertThenCompareAndSet(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	repo, err := New(client, "notes", newNotesView, Config{})
	require.NoError(t, err)
	assert.Equal(t, "view:notes:n1", repo.Key("n1"))

	_, vctx, found, err := repo.LoadWithContext(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "n1", vctx.ViewID)

	require.NoError(t, repo.UpdateView(ctx, &notesView{Notes: []string{"a"}}, vctx, 1))

	view, vctx, found, err := repo.LoadWithContext(ctx, "n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"a"}, view.Notes)
	assert.Equal(t, uint64(1), vctx.Version)

	// 过期版本写入被拒绝
	err = repo.UpdateView(ctx, &notesView{}, projection.ViewContext{ViewID: "n1"}, 1)
	assert.True(t, projection.IsViewConflict(err))

	require.NoError(t, repo.UpdateView(ctx, &notesView{Notes: []string{"a", "b"}}, vctx, 2))
	view, found, err = repo.Load(ctx, "n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"a", "b"}, view.Notes)
	assert.Contains(t, client.scripts[0], "HSET")
}

func TestRepository_WithGenericQuery(t *testing.T) {
	ctx := context.Background()
	repo, err := New(newFakeRedis(), "notes", newNotesView, Config{KeyPrefix: "rm:", Serializer: eventing.MsgpackSerializer{}})
	require.NoError(t, err)
	query := projection.NewGenericQuery[noteEvent, *notesView](repo, newNotesView)

	require.NoError(t, query.Dispatch(ctx, "n2", envelopes("n2", 1, "x", "y")))
	require.NoError(t, query.Dispatch(ctx, "n2", envelopes("n2", 3, "z")))

	view, found, err := query.Load(ctx, "n2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"x", "y", "z"}, view.Notes)

	_, vctx, _, err := repo.LoadWithContext(ctx, "n2")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), vctx.Version)
}

func TestRepository_Errors(t *testing.T) {
	_, err := New[*notesView](nil, "notes", newNotesView, Config{})
	assert.Error(t, err)
	_, err = New(newFakeRedis(), "", newNotesView, Config{})
	assert.Error(t, err)

	client := newFakeRedis()
	client.evalErr = stderrors.New("connection refused")
	repo, err := New(client, "notes", newNotesView, Config{})
	require.NoError(t, err)
	err = repo.UpdateView(context.Background(), &notesView{}, projection.ViewContext{ViewID: "n3"}, 1)
	var storeErr *eventing.StoreError
	require.True(t, stderrors.As(err, &storeErr))
	assert.Equal(t, eventing.ErrCodeStoreFailed, storeErr.Code)
	assert.False(t, projection.IsViewConflict(err))

	client.hashes["view:notes:n4"] = map[string]string{"version": "1", "payload": "{not json"}
	_, _, err = repo.Load(context.Background(), "n4")
	require.True(t, stderrors.As(err, &storeErr))
	assert.Equal(t, eventing.ErrCodeDeserializePayload, storeErr.Code)
}
