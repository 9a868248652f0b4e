package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于日志分级与审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeTimeout               Code = "TIMEOUT"

	// CodeValidation 对应调用方输入错误，永远直接返回给调用方。
	CodeValidation Code = "VALIDATION_FAILED"
	// CodeBackendUnavailable 对应链上后端不可用，由 Agent 内部吸收并降级为模拟结果。
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	// CodeDecryption 对应密钥或 IV 不匹配、密文被篡改。
	CodeDecryption Code = "DECRYPTION_FAILED"
	// CodeSignatureVerification 对应签名校验无法完成。
	CodeSignatureVerification Code = "SIGNATURE_VERIFICATION_FAILED"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message  string
	Severity Severity
	// Simulatable 表示该类错误允许被模拟结果替代。
	Simulatable bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical},
		CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo},
		CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning},
		CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Simulatable: true},
		CodeValidation:            {Message: "validation failed", Severity: SeverityInfo},
		CodeBackendUnavailable:    {Message: "backend unavailable", Severity: SeverityWarning, Simulatable: true},
		CodeDecryption:            {Message: "decryption failed", Severity: SeverityWarning},
		CodeSignatureVerification: {Message: "signature verification failed", Severity: SeverityCritical},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Validation 构造一个 ValidationError。
func Validation(message string, opts ...Option) *Error {
	return New(CodeValidation, message, opts...)
}

// BackendUnavailable 将后端调用失败包装为 BackendUnavailableError。
func BackendUnavailable(cause error, message string, opts ...Option) *Error {
	return Wrap(CodeBackendUnavailable, cause, message, opts...)
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含底层原因的错误描述，可直接展示给调用方。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// IsValidation 判断是否为调用方输入错误。
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsBackendUnavailable 判断是否为后端不可用错误。
func IsBackendUnavailable(err error) bool {
	return CodeOf(err) == CodeBackendUnavailable
}

// IsDecryption 判断是否为解密失败。
func IsDecryption(err error) bool {
	return CodeOf(err) == CodeDecryption
}

// Simulatable 判断错误是否允许被模拟结果替代。校验错误永远不可替代；
// 未归类的错误（例如 SDK 直接返回的网络错误）视为后端失败。
func Simulatable(err error) bool {
	if err == nil {
		return false
	}
	e, ok := From(err)
	if !ok {
		return true
	}
	return AttributesOf(e.Code()).Simulatable
}
