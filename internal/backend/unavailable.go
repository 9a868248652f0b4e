package backend

import (
	"context"

	"AgentPayroll/internal/credential"
	xerrors "AgentPayroll/internal/errors"
)

// Unavailable 在没有可用链上后端时使用，所有调用都返回 BackendUnavailableError，
// Agent 因此进入全模拟模式。
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	reason := u.Reason
	if reason == "" {
		reason = "未配置链上后端"
	}
	return xerrors.BackendUnavailable(nil, reason)
}

func (u Unavailable) Authenticate(context.Context, *credential.Credential) error { return u.err() }

func (u Unavailable) ResolveAddress(context.Context, *credential.Credential) (string, error) {
	return "", u.err()
}

func (u Unavailable) CreateIdentity(context.Context, *credential.Credential) (IdentityResult, error) {
	return IdentityResult{}, u.err()
}

func (u Unavailable) Register(context.Context, *credential.Credential) (RegistrationResult, error) {
	return RegistrationResult{}, u.err()
}

func (u Unavailable) Authorize(context.Context, AuthorizeRequest) (AuthorizationResult, error) {
	return AuthorizationResult{}, u.err()
}

func (u Unavailable) SetLimits(context.Context, LimitsRequest) (LimitsResult, error) {
	return LimitsResult{}, u.err()
}

func (u Unavailable) Revoke(context.Context, RevokeRequest) (RevocationResult, error) {
	return RevocationResult{}, u.err()
}

func (u Unavailable) VerifySignature(context.Context, SignatureRequest) (bool, error) {
	return false, u.err()
}

func (u Unavailable) GetBalance(context.Context, string, string) (string, error) {
	return "", u.err()
}

func (u Unavailable) SendPayment(context.Context, PaymentRequest) (PaymentResult, error) {
	return PaymentResult{}, u.err()
}

var _ Capability = Unavailable{}
