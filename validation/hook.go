package validation

import (
	"context"
)

// CommandHook 在命令执行前校验聚合 ID 与实现了 IValidatable 的命令
//
// 满足 eventsourced.ICommandHook，通过 eventsourced.WithHooks 注册。
type CommandHook struct{}

// NewCommandHook 创建校验钩子
func NewCommandHook() *CommandHook { return &CommandHook{} }

func (h *CommandHook) BeforeExecute(ctx context.Context, aggregateType, aggregateID string, command any) error {
	if err := ValidateIdentifier(aggregateID, "aggregate_id"); err != nil {
		return err
	}
	if v, ok := command.(IValidatable); ok {
		return v.Validate()
	}
	return nil
}

func (h *CommandHook) AfterExecute(ctx context.Context, aggregateType, aggregateID string, command any, execErr error) error {
	return nil
}
