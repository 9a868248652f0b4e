package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"AgentPayroll/internal/api"
	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/payroll"
	"AgentPayroll/sdk/go/payrollclient"
)

// 在本地启动一个离线的 payrolld，并通过 SDK 提交一次发薪。
func main() {
	server := api.NewServer(api.Options{
		Factory: payroll.NewAgentFactory(backend.Unavailable{Reason: "demo"}),
	})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	client, err := payrollclient.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		panic(err)
	}
	run, err := client.RunPayroll(ctx, []payrollclient.Employee{
		{EmployeeID: "e1", To: "0x1111111111111111111111111111111111111111", Amount: 100, Currency: "USDT"},
		{EmployeeID: "e2", To: "", Amount: 100, Currency: "USDT"},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("run %s\n", run.RunID)
	for _, r := range run.Results {
		fmt.Printf("employee %s status=%s payment=%s simulated=%t %s\n", r.ID(), r.Status, r.PaymentID, r.Simulated, r.Error)
	}
}
