package agent

import "AgentPayroll/internal/backend"

// Source 标记结果来自真实后端还是本地模拟。
type Source string

const (
	SourceReal      Source = "real"
	SourceSimulated Source = "simulated"
)

// Outcome 携带一次操作的结果及其来源。Cause 保存触发降级的后端错误，
// 真实结果的 Cause 为 nil。
type Outcome[T any] struct {
	Value  T
	Source Source
	Cause  error
}

// Simulated reports whether the value was synthesized locally.
func (o Outcome[T]) Simulated() bool {
	return o.Source == SourceSimulated
}

// PaymentOutcome 是 SendPayment 的结果：Real(PaymentResult) 或 Simulated(PaymentResult)。
type PaymentOutcome = Outcome[backend.PaymentResult]

func realOutcome[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Source: SourceReal}
}

func simulatedOutcome[T any](v T, cause error) Outcome[T] {
	return Outcome[T]{Value: v, Source: SourceSimulated, Cause: cause}
}
