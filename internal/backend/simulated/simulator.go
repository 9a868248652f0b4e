// Package simulated synthesizes backend results locally. Every result has the
// same shape as its real counterpart and is marked "(simulated)" in Message.
package simulated

import (
	"context"

	"github.com/google/uuid"

	"AgentPayroll/internal/backend"
	"AgentPayroll/internal/credential"
)

// DefaultBalance 是模拟模式下返回的固定余额。
const DefaultBalance = "1000000"

// Simulator 在链上后端不可用时生成确定性的结果。
type Simulator struct {
	// Balance 覆盖模拟余额，空值使用 DefaultBalance。
	Balance string
}

// New 创建 Simulator。
func New() *Simulator {
	return &Simulator{}
}

// Authenticate 总是成功。
func (s *Simulator) Authenticate(context.Context, *credential.Credential) error {
	return nil
}

// ResolveAddress 根据凭证推导地址。
func (s *Simulator) ResolveAddress(_ context.Context, cred *credential.Credential) (string, error) {
	addr, _ := credential.ToAddress(cred)
	return addr.Hex(), nil
}

// CreateIdentity 返回凭证对应地址的身份。
func (s *Simulator) CreateIdentity(ctx context.Context, cred *credential.Credential) (backend.IdentityResult, error) {
	addr, _ := s.ResolveAddress(ctx, cred)
	return backend.IdentityResult{
		Success: true,
		Address: addr,
		Message: "Identity created successfully (simulated)",
	}, nil
}

// Register 返回注册成功。
func (s *Simulator) Register(ctx context.Context, cred *credential.Credential) (backend.RegistrationResult, error) {
	addr, _ := s.ResolveAddress(ctx, cred)
	return backend.RegistrationResult{
		Success: true,
		Address: addr,
		Message: "Agent registered successfully (simulated)",
	}, nil
}

// Authorize 返回授权成功并回显授权内容。
func (s *Simulator) Authorize(_ context.Context, req backend.AuthorizeRequest) (backend.AuthorizationResult, error) {
	return backend.AuthorizationResult{
		Success:        true,
		GranteeAddress: req.GranteeAddress,
		Permissions:    append([]backend.Permission(nil), req.Permissions...),
		Message:        "Agent authorized successfully (simulated)",
	}, nil
}

// SetLimits 返回设置成功并回显限额。
func (s *Simulator) SetLimits(_ context.Context, req backend.LimitsRequest) (backend.LimitsResult, error) {
	return backend.LimitsResult{
		Success: true,
		Limits:  req.Limits,
		Message: "Limits set successfully (simulated)",
	}, nil
}

// Revoke 返回撤销成功。
func (s *Simulator) Revoke(_ context.Context, req backend.RevokeRequest) (backend.RevocationResult, error) {
	return backend.RevocationResult{
		Success:        true,
		GranteeAddress: req.GranteeAddress,
		Message:        "Agent revoked successfully (simulated)",
	}, nil
}

// VerifySignature 在本地完成真实的签名恢复，不会伪造结果。
func (s *Simulator) VerifySignature(_ context.Context, req backend.SignatureRequest) (bool, error) {
	return backend.VerifyPersonalSignature(req.Message, req.Signature, req.Address)
}

// GetBalance 返回固定余额。
func (s *Simulator) GetBalance(context.Context, string, string) (string, error) {
	if s.Balance != "" {
		return s.Balance, nil
	}
	return DefaultBalance, nil
}

// SendPayment 返回成功的转账结果，支付 ID 由时间有序的 UUIDv7 生成。
func (s *Simulator) SendPayment(_ context.Context, req backend.PaymentRequest) (backend.PaymentResult, error) {
	return backend.PaymentResult{
		ID:       "payment_" + uuid.Must(uuid.NewV7()).String(),
		Status:   backend.PaymentSuccess,
		To:       req.To,
		Amount:   req.Amount,
		Currency: req.Currency,
		From:     req.From,
		Message:  "Payment sent successfully (simulated)",
	}, nil
}

var _ backend.Capability = (*Simulator)(nil)
