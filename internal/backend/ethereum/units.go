package ethereum

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var unitsPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// ParseUnits 将十进制金额字符串转换为最小单位整数，例如 "1.5" 在 18 位精度下
// 对应 1500000000000000000。超出精度的小数位视为错误，不做舍入。
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, errors.New("金额为空")
	}
	if !unitsPattern.MatchString(amount) {
		return nil, fmt.Errorf("不是十进制金额: %s", amount)
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("无法解析金额: %s", amount)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("金额不能为负数: %s", amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("金额 %s 超出 %d 位精度", amount, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatUnits 将最小单位整数格式化为十进制字符串，去掉末尾多余的 0。
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	if decimals <= 0 {
		return value.String()
	}
	neg := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
