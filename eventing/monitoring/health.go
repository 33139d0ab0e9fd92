package monitoring

import "fmt"

// HealthThresholds 健康判定阈值（百分比）
type HealthThresholds struct {
	MaxTechnicalFailureRate   float64
	MaxConcurrencyFailureRate float64
	MaxProjectionErrorRate    float64
}

// DefaultHealthThresholds 技术故障与投影错误 5%，冲突 20%
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		MaxTechnicalFailureRate:   5,
		MaxConcurrencyFailureRate: 20,
		MaxProjectionErrorRate:    5,
	}
}

// HealthStatus 健康状态
type HealthStatus struct {
	Status  string                 `json:"status"`
	Healthy bool                   `json:"healthy"`
	Issues  []string               `json:"issues"`
	Metrics map[string]interface{} `json:"metrics"`
}

// Health 依据阈值判断健康状态；业务拒绝不计入故障
func (s MetricsSnapshot) Health(th HealthThresholds) HealthStatus {
	issues := make([]string, 0)
	check := func(name string, count, total int64, limit float64) {
		if total == 0 || count == 0 {
			return
		}
		rate := float64(count) / float64(total) * 100
		if rate > limit {
			issues = append(issues, fmt.Sprintf("high %s rate: %.1f%%", name, rate))
		}
	}
	check("technical failure", s.TechnicalFailures, s.CommandsExecuted, th.MaxTechnicalFailureRate)
	check("concurrency conflict", s.ConcurrencyFailures, s.CommandsExecuted, th.MaxConcurrencyFailureRate)
	check("projection error", s.ProjectionErrors, s.ProjectionUpdates, th.MaxProjectionErrorRate)

	status := "healthy"
	if len(issues) > 0 {
		status = "degraded"
	}
	return HealthStatus{
		Status:  status,
		Healthy: len(issues) == 0,
		Issues:  issues,
		Metrics: s.ToMap(),
	}
}
