package payrollclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunPayrollSendsEmployees(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runPayroll" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var body struct {
			Employees []Employee `json:"employees"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if len(body.Employees) != 2 || body.Employees[1].To != "" {
			t.Fatalf("unexpected employees: %+v", body.Employees)
		}
		if id, ok := body.Employees[1].EmployeeID.(float64); !ok || id != 42 {
			t.Fatalf("numeric employee id not preserved: %#v", body.Employees[1].EmployeeID)
		}
		_, _ = w.Write([]byte(`{"success":true,"runId":"run-1","data":[
			{"employeeId":"e1","status":"success","paymentId":"payment_1","amountSettled":"100","currency":"USD","simulated":true},
			{"employeeId":42,"status":"failure","simulated":false,"error":"VALIDATION_FAILED: Invalid payment intent: missing required fields"}
		]}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	run, err := client.RunPayroll(context.Background(), []Employee{
		{EmployeeID: "e1", To: "0xabc", Amount: 100, Currency: "USD"},
		{EmployeeID: 42, Amount: "100", Currency: "USD"},
	})
	if err != nil {
		t.Fatalf("run payroll: %v", err)
	}
	if run.RunID != "run-1" || len(run.Results) != 2 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Results[0].ID() != "e1" {
		t.Fatalf("unexpected employee id: %s", run.Results[0].ID())
	}
	if !run.Results[0].Succeeded() || !run.Results[0].Simulated {
		t.Fatalf("unexpected first result: %+v", run.Results[0])
	}
	if run.Results[1].ID() != "42" {
		t.Fatalf("unexpected numeric employee id: %s", run.Results[1].ID())
	}
	if run.Results[1].Succeeded() || run.Results[1].Error == "" {
		t.Fatalf("unexpected second result: %+v", run.Results[1])
	}
}

func TestRunPayrollBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"employees must be an array"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.RunPayroll(context.Background(), nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "employees must be an array" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestHealth(t *testing.T) {
	status := "ok"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/base/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/base", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	status = "starting"
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected unhealthy error")
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost", nil); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}
