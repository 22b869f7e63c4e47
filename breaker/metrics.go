package breaker

import "github.com/ceyewan/nexus/metrics"

// transitionLabels 构造状态切换指标的标签（内部使用）
func transitionLabels(name string, from, to State) []metrics.Label {
	return []metrics.Label{
		metrics.L("breaker", name),
		metrics.L("from", from.String()),
		metrics.L("to", to.String()),
	}
}
