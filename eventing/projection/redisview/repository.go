// Package redisview 基于 Redis 的视图存储
//
// 每个视图保存为一个 hash：version 与 payload 两个字段。
// 写入通过 Lua 脚本在服务端比较版本后覆盖，等价于对 version 的 CAS。
package redisview

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"gocqrs/eventing"
	"gocqrs/eventing/projection"
	"gocqrs/logging"
)

// compareAndSet KEYS[1]=视图 key，ARGV = 期望版本, 新版本, 载荷
const compareAndSet = `
local current = redis.call('HGET', KEYS[1], 'version')
if (current == false and ARGV[1] == '0') or current == ARGV[1] then
	redis.call('HSET', KEYS[1], 'version', ARGV[2], 'payload', ARGV[3])
	return 1
end
return 0
`

// Client 仓储依赖的 go-redis 命令子集
type Client interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Config 仓储配置
type Config struct {
	KeyPrefix  string
	Serializer eventing.Serializer
	Logger     logging.Logger
}

// Repository Redis 视图存储
type Repository[V any] struct {
	client   Client
	viewType string
	factory  func() V
	cfg      Config
}

// New 创建仓储；KeyPrefix 默认 "view:"
func New[V any](client Client, viewType string, factory func() V, cfg Config) (*Repository[V], error) {
	if client == nil {
		return nil, stderrors.New("redis client not configured")
	}
	if viewType == "" {
		return nil, stderrors.New("view type cannot be empty")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "view:"
	}
	if cfg.Serializer == nil {
		cfg.Serializer = eventing.JSONSerializer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("eventing.projection.redisview")
	}
	return &Repository[V]{client: client, viewType: viewType, factory: factory, cfg: cfg}, nil
}

// Key 视图在 Redis 中的 key
func (r *Repository[V]) Key(viewID string) string {
	return r.cfg.KeyPrefix + r.viewType + ":" + viewID
}

func (r *Repository[V]) Load(ctx context.Context, viewID string) (V, bool, error) {
	v, _, found, err := r.LoadWithContext(ctx, viewID)
	return v, found, err
}

func (r *Repository[V]) LoadWithContext(ctx context.Context, viewID string) (V, projection.ViewContext, bool, error) {
	var zero V
	values, err := r.client.HMGet(ctx, r.Key(viewID), "version", "payload").Result()
	if err != nil {
		return zero, projection.ViewContext{}, false, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "load view "+viewID, err)
	}
	if len(values) != 2 || values[0] == nil {
		return zero, projection.ViewContext{ViewID: viewID}, false, nil
	}

	version, err := parseVersion(values[0])
	if err != nil {
		return zero, projection.ViewContext{}, false, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "load view "+viewID, err)
	}
	payload, _ := values[1].(string)
	view := r.factory()
	if err := r.cfg.Serializer.Unmarshal([]byte(payload), &view); err != nil {
		return zero, projection.ViewContext{}, false, eventing.NewStoreError(eventing.ErrCodeDeserializePayload, "decode view "+viewID, err)
	}
	return view, projection.ViewContext{ViewID: viewID, Version: version}, true, nil
}

func (r *Repository[V]) UpdateView(ctx context.Context, view V, vctx projection.ViewContext, newVersion uint64) error {
	payload, err := r.cfg.Serializer.Marshal(view)
	if err != nil {
		return eventing.NewStoreError(eventing.ErrCodeSerializePayload, "encode view "+vctx.ViewID, err)
	}
	key := r.Key(vctx.ViewID)
	swapped, err := r.client.Eval(ctx, compareAndSet, []string{key},
		strconv.FormatUint(vctx.Version, 10),
		strconv.FormatUint(newVersion, 10),
		string(payload),
	).Int64()
	if err != nil {
		return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "update view "+vctx.ViewID, err)
	}
	if swapped == 0 {
		return projection.NewViewConflictError(vctx.ViewID, vctx.Version)
	}
	r.cfg.Logger.Debug(ctx, "view updated",
		logging.String("key", key),
		logging.Uint64("version", newVersion))
	return nil
}

func parseVersion(v any) (uint64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseUint(n, 10, 64)
	case int64:
		return uint64(n), nil
	}
	return 0, fmt.Errorf("unexpected version value %T", v)
}

var _ projection.IViewRepository[struct{}] = (*Repository[struct{}])(nil)
