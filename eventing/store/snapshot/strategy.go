package snapshot

import "strings"

// Decision 判断是否生成快照所需的信息
type Decision struct {
	AggregateType string
	AggregateID   string
	// LastSnapshotSequence 上一份快照覆盖到的 sequence，没有快照时为 0
	LastSnapshotSequence uint64
	// NewSequence 本次提交后的 sequence
	NewSequence uint64
	// StateSize 序列化后状态的字节数；未知时为 0
	StateSize int
}

// EventsSinceSnapshot 自上次快照以来累计的事件数
func (d Decision) EventsSinceSnapshot() uint64 {
	if d.NewSequence < d.LastSnapshotSequence {
		return 0
	}
	return d.NewSequence - d.LastSnapshotSequence
}

// Strategy 快照策略接口
// 用于判断一次提交是否应顺带写入快照
type Strategy interface {
	ShouldSnapshot(d Decision) bool
	Name() string // 策略名称
}

// Never 从不生成快照（默认）
type Never struct{}

func (Never) ShouldSnapshot(Decision) bool { return false }
func (Never) Name() string                 { return "Never" }

// EventCountStrategy 基于事件数量的快照策略
// 自上次快照以来累计事件数达到 Frequency 时创建快照
type EventCountStrategy struct {
	Frequency uint64 // 每N个事件创建一次快照
}

// NewEventCountStrategy 创建事件计数策略
func NewEventCountStrategy(frequency uint64) *EventCountStrategy {
	if frequency == 0 {
		frequency = 100 // 默认每100个事件
	}
	return &EventCountStrategy{Frequency: frequency}
}

func (s *EventCountStrategy) ShouldSnapshot(d Decision) bool {
	return d.EventsSinceSnapshot() >= s.Frequency
}

func (s *EventCountStrategy) Name() string { return "EventCountStrategy" }

// StateSizeStrategy 状态序列化结果超过阈值且有新事件时创建快照
type StateSizeStrategy struct {
	MaxSizeBytes int
}

func (s *StateSizeStrategy) ShouldSnapshot(d Decision) bool {
	return s.MaxSizeBytes > 0 && d.StateSize >= s.MaxSizeBytes && d.EventsSinceSnapshot() > 0
}

func (s *StateSizeStrategy) Name() string { return "StateSizeStrategy" }

// CompositeMode 组合模式
type CompositeMode string

const (
	// CompositeModeAny 任一策略满足
	CompositeModeAny CompositeMode = "any"
	// CompositeModeAll 全部策略满足
	CompositeModeAll CompositeMode = "all"
)

// CompositeStrategy 组合快照策略
type CompositeStrategy struct {
	Mode       CompositeMode
	Strategies []Strategy
}

// NewCompositeStrategy 创建组合策略
func NewCompositeStrategy(mode CompositeMode, strategies ...Strategy) *CompositeStrategy {
	if mode == "" {
		mode = CompositeModeAny
	}
	return &CompositeStrategy{Mode: mode, Strategies: strategies}
}

func (s *CompositeStrategy) ShouldSnapshot(d Decision) bool {
	if len(s.Strategies) == 0 {
		return false
	}
	for _, st := range s.Strategies {
		ok := st.ShouldSnapshot(d)
		if s.Mode == CompositeModeAll && !ok {
			return false
		}
		if s.Mode != CompositeModeAll && ok {
			return true
		}
	}
	return s.Mode == CompositeModeAll
}

func (s *CompositeStrategy) Name() string {
	names := make([]string, 0, len(s.Strategies))
	for _, st := range s.Strategies {
		names = append(names, st.Name())
	}
	return "Composite(" + string(s.Mode) + ":" + strings.Join(names, ",") + ")"
}

// Enabled 策略是否可能生成快照；Never 与 nil 视为关闭
func Enabled(s Strategy) bool {
	if s == nil {
		return false
	}
	_, never := s.(Never)
	return !never
}
