package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	xerrors "AgentPayroll/internal/errors"
)

type amountKind uint8

var (
	// 金额字符串只接受普通十进制写法。
	decimalPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	// JSON 数字允许指数，解码后统一改写为十进制文本。
	numberPattern = regexp.MustCompile(`^(-?)(\d+)(?:\.(\d+))?(?:[eE]([+-]?\d+))?$`)
)

// maxExponent 限制指数大小，避免展开出超长文本。
const maxExponent = 100

const (
	amountMissing amountKind = iota
	amountNumber
	amountString
	amountInvalid
)

// Amount 是支付金额。JSON 中既可以是数字也可以是数字字符串，其他类型
// 会被保留为无效值，在 ValidatePaymentIntent 中报告，而不是让整个请求解码失败。
type Amount struct {
	text string
	kind amountKind
}

// ParseAmount builds an Amount from a decoded value: string, json.Number,
// integer and float types are accepted, anything else yields an invalid amount.
func ParseAmount(v any) Amount {
	switch val := v.(type) {
	case nil:
		return Amount{}
	case Amount:
		return val
	case string:
		return Amount{text: val, kind: amountString}
	case json.Number:
		return numberAmount(val.String())
	case int:
		return Amount{text: strconv.Itoa(val), kind: amountNumber}
	case int64:
		return Amount{text: strconv.FormatInt(val, 10), kind: amountNumber}
	case uint64:
		return Amount{text: strconv.FormatUint(val, 10), kind: amountNumber}
	case float64:
		return Amount{text: strconv.FormatFloat(val, 'f', -1, 64), kind: amountNumber}
	default:
		return Amount{text: fmt.Sprintf("%v", val), kind: amountInvalid}
	}
}

// String 返回金额的原始文本。
func (a Amount) String() string {
	return strings.TrimSpace(a.text)
}

// IsZero reports whether no amount was provided.
func (a Amount) IsZero() bool {
	return a.kind == amountMissing
}

// UnmarshalJSON 接受数字或字符串，null 视为缺失。
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*a = Amount{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount{text: s, kind: amountString}
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		*a = numberAmount(string(data))
	default:
		*a = Amount{text: string(data), kind: amountInvalid}
	}
	return nil
}

// MarshalJSON 保持输入时的类型。
func (a Amount) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case amountNumber:
		return []byte(a.String()), nil
	case amountString:
		return json.Marshal(a.text)
	default:
		return []byte("null"), nil
	}
}

func numberAmount(text string) Amount {
	plain, ok := plainDecimal(text)
	if !ok {
		return Amount{text: text, kind: amountInvalid}
	}
	return Amount{text: plain, kind: amountNumber}
}

// plainDecimal 将 JSON 数字（可能带指数）展开为不带指数的十进制文本，
// 例如 1e2 => "100"，2.5E-1 => "0.25"。
func plainDecimal(text string) (string, bool) {
	m := numberPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	sign, whole, frac := m[1], m[2], m[3]
	exp := 0
	if m[4] != "" {
		e, err := strconv.Atoi(m[4])
		if err != nil || e > maxExponent || e < -maxExponent {
			return "", false
		}
		exp = e
	}

	digits := whole + frac
	point := len(whole) + exp
	switch {
	case point <= 0:
		whole, frac = "0", strings.Repeat("0", -point)+digits
	case point >= len(digits):
		whole, frac = digits+strings.Repeat("0", point-len(digits)), ""
	default:
		whole, frac = digits[:point], digits[point:]
	}
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	frac = strings.TrimRight(frac, "0")
	if frac != "" {
		return sign + whole + "." + frac, true
	}
	return sign + whole, true
}

// decimal 解析为有理数，只接受普通十进制写法。
func (a Amount) decimal() (*big.Rat, error) {
	text := a.String()
	if !decimalPattern.MatchString(text) {
		return nil, fmt.Errorf("invalid decimal %q", text)
	}
	r, ok := new(big.Rat).SetString(text)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", text)
	}
	return r, nil
}

// PaymentIntent 描述一次转账请求。
type PaymentIntent struct {
	To       string `json:"to"`
	Amount   Amount `json:"amount"`
	Currency string `json:"currency"`
}

// ValidatePaymentIntent 在任何后端交互之前检查支付意图，失败时返回 ValidationError。
func ValidatePaymentIntent(intent PaymentIntent) error {
	// 三个字段都必须存在。
	if strings.TrimSpace(intent.To) == "" || intent.Amount.IsZero() || intent.Amount.String() == "" ||
		strings.TrimSpace(intent.Currency) == "" {
		return xerrors.Validation("Invalid payment intent: missing required fields")
	}

	// 金额只能是数字或数字字符串。
	if intent.Amount.kind == amountInvalid {
		return xerrors.Validation("Invalid payment intent: amount must be string or number")
	}
	r, err := intent.Amount.decimal()
	if err != nil {
		return xerrors.Validation("Invalid payment intent: amount must be numeric")
	}
	if r.Sign() <= 0 {
		return xerrors.Validation("Invalid payment intent: amount must be positive")
	}
	return nil
}

func validateLimitAmount(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	r, err := ParseAmount(value).decimal()
	if err != nil || r.Sign() < 0 {
		return xerrors.Validation(fmt.Sprintf("invalid %s limit: %q", field, value))
	}
	return nil
}
