package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	xerrors "AgentPayroll/internal/errors"
	"AgentPayroll/internal/payroll"
)

type runPayrollRequest struct {
	Employees json.RawMessage `json:"employees"`
}

type runPayrollResponse struct {
	Success bool             `json:"success"`
	Data    []payroll.Result `json:"data"`
	RunID   string           `json:"runId"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleRunPayroll 执行一次发薪批次。单条失败体现在 data 中，整体仍返回 200。
func (s *Server) handleRunPayroll(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "请求体读取失败")
		return
	}
	var req runPayrollRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体不是合法的 JSON")
		return
	}
	raw := bytes.TrimSpace(req.Employees)
	if len(raw) == 0 || raw[0] != '[' {
		writeError(w, http.StatusBadRequest, "employees must be an array")
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		writeError(w, http.StatusBadRequest, "employees must be an array")
		return
	}

	// 逐条解析，结构错误的条目直接记为失败，其余交给 Orchestrator。
	results := make([]payroll.Result, len(items))
	requests := make([]payroll.EmployeeRequest, 0, len(items))
	positions := make([]int, 0, len(items))
	for i, item := range items {
		var er payroll.EmployeeRequest
		if err := json.Unmarshal(item, &er); err != nil {
			results[i] = payroll.Result{
				EmployeeID: er.EmployeeID,
				Status:     payroll.StatusFailure,
				Error:      string(xerrors.CodeValidation) + ": Invalid payment intent: malformed entry",
			}
			continue
		}
		requests = append(requests, er)
		positions = append(positions, i)
	}

	ctx := r.Context()
	orch, err := payroll.New(ctx, s.opts.Keys, s.opts.Factory, s.opts.PayrollOptions...)
	if err != nil {
		s.internalError(w, r, "创建发薪编排器失败", err)
		return
	}
	defer orch.Close()

	if s.opts.BootstrapGrants {
		if _, err := orch.Setup(ctx); err != nil {
			s.internalError(w, r, "建立委托授权失败", err)
			return
		}
	}

	paid, err := orch.Run(ctx, requests)
	if err != nil {
		s.internalError(w, r, "发薪批次执行失败", err)
		return
	}
	for j, res := range paid {
		results[positions[j]] = res
	}

	writeJSON(w, http.StatusOK, runPayrollResponse{Success: true, Data: results, RunID: orch.RunID()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(msg,
		slog.String("request_id", chimw.GetReqID(r.Context())),
		slog.Any("error", err))
	detail := err.Error()
	var xe *xerrors.Error
	if errors.As(err, &xe) {
		detail = xe.Message()
	}
	writeError(w, http.StatusInternalServerError, detail)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
