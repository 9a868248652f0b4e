package backend

import (
	"context"

	"AgentPayroll/internal/credential"
)

// Permission 是授权给其他地址的能力标签。
type Permission string

const (
	PermissionSendPayment    Permission = "payment:send"
	PermissionApprovePayment Permission = "payment:approve"
	PermissionReadPayroll    Permission = "payroll:read"
	PermissionManageIdentity Permission = "identity:manage"
)

// Limits 描述授权账户的消费限额，金额为十进制字符串，空值表示不限。
type Limits struct {
	PerTransaction string `json:"perTransaction,omitempty"`
	Daily          string `json:"daily,omitempty"`
	Monthly        string `json:"monthly,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// IdentityResult 是创建链上身份的结果。
type IdentityResult struct {
	Success bool   `json:"success"`
	Address string `json:"address"`
	Message string `json:"message,omitempty"`
}

// RegistrationResult 是注册 Agent 的结果。
type RegistrationResult struct {
	Success bool   `json:"success"`
	Address string `json:"address"`
	TxHash  string `json:"txHash,omitempty"`
	Message string `json:"message,omitempty"`
}

// AuthorizationResult 是授权操作的结果。
type AuthorizationResult struct {
	Success        bool         `json:"success"`
	GranteeAddress string       `json:"granteeAddress"`
	Permissions    []Permission `json:"permissions"`
	TxHash         string       `json:"txHash,omitempty"`
	Message        string       `json:"message,omitempty"`
}

// LimitsResult 是设置限额的结果。
type LimitsResult struct {
	Success bool   `json:"success"`
	Limits  Limits `json:"limits"`
	TxHash  string `json:"txHash,omitempty"`
	Message string `json:"message,omitempty"`
}

// RevocationResult 是撤销授权的结果。
type RevocationResult struct {
	Success        bool   `json:"success"`
	GranteeAddress string `json:"granteeAddress"`
	TxHash         string `json:"txHash,omitempty"`
	Message        string `json:"message,omitempty"`
}

// PaymentResult 是一次转账的结果。
type PaymentResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	From     string `json:"from,omitempty"`
	TxHash   string `json:"txHash,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Payment statuses.
const (
	PaymentSubmitted = "submitted"
	PaymentSuccess   = "success"
)

// AuthorizeRequest 描述一次授权。
type AuthorizeRequest struct {
	Credential     *credential.Credential
	GranteeAddress string
	Permissions    []Permission
}

// LimitsRequest 描述一次限额设置。
type LimitsRequest struct {
	Credential *credential.Credential
	Limits     Limits
}

// RevokeRequest 描述一次授权撤销。
type RevokeRequest struct {
	Credential     *credential.Credential
	GranteeAddress string
}

// SignatureRequest 描述一次签名校验。
type SignatureRequest struct {
	Message   string
	Signature string
	Address   string
}

// PaymentRequest 描述一次转账，From 为发起方的委托账户地址。
type PaymentRequest struct {
	Credential *credential.Credential
	From       string
	To         string
	Amount     string
	Currency   string
}

// Capability 是 Agent 访问链上后端的全部能力。凭证只在需要签名的调用中传入，
// 实现方不得持有或记录凭证。
type Capability interface {
	Authenticate(ctx context.Context, cred *credential.Credential) error
	ResolveAddress(ctx context.Context, cred *credential.Credential) (string, error)
	CreateIdentity(ctx context.Context, cred *credential.Credential) (IdentityResult, error)
	Register(ctx context.Context, cred *credential.Credential) (RegistrationResult, error)
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizationResult, error)
	SetLimits(ctx context.Context, req LimitsRequest) (LimitsResult, error)
	Revoke(ctx context.Context, req RevokeRequest) (RevocationResult, error)
	VerifySignature(ctx context.Context, req SignatureRequest) (bool, error)
	GetBalance(ctx context.Context, address, currency string) (string, error)
	SendPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}
