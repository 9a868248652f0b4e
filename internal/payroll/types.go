package payroll

import (
	"bytes"
	"encoding/json"
	"fmt"

	"AgentPayroll/internal/agent"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// EmployeeID 接受 JSON 字符串或数字。
type EmployeeID string

// UnmarshalJSON accepts "e1" as well as 42.
func (id *EmployeeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EmployeeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("employeeId must be a string or number: %w", err)
	}
	*id = EmployeeID(n.String())
	return nil
}

// EmployeeRequest 是一名员工的发薪请求。
type EmployeeRequest struct {
	EmployeeID EmployeeID   `json:"employeeId"`
	To         string       `json:"to"`
	Amount     agent.Amount `json:"amount"`
	Currency   string       `json:"currency"`
}

// Intent 转换为 Agent 的支付意图。
func (r EmployeeRequest) Intent() agent.PaymentIntent {
	return agent.PaymentIntent{To: r.To, Amount: r.Amount, Currency: r.Currency}
}

// Result 是单名员工的发薪结果，与输入一一对应。
type Result struct {
	EmployeeID    EmployeeID `json:"employeeId"`
	Status        string     `json:"status"`
	PaymentID     string     `json:"paymentId,omitempty"`
	AmountSettled string     `json:"amountSettled,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	To            string     `json:"to,omitempty"`
	Simulated     bool       `json:"simulated"`
	Error         string     `json:"error,omitempty"`
}

// Keys 保存三个角色的凭证原文。
type Keys struct {
	HR       string
	Payroll  string
	Employee string
}

// Summary 汇总一次发薪批次。
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Simulated int
}

// Summarize 统计结果。
func Summarize(runID string, results []Result) Summary {
	s := Summary{RunID: runID, Total: len(results)}
	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if r.Simulated {
			s.Simulated++
		}
	}
	return s
}
