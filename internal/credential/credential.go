// Package credential holds agent key material in memory and derives the
// on-chain address bound to it.
package credential

import (
	"crypto/ecdsa"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrEmpty 表示凭证为空或已被清除。
var ErrEmpty = errors.New("credential is empty")

// Credential 保存单个 Agent 的私钥材料。零值表示空凭证。
type Credential struct {
	mu  sync.RWMutex
	key []byte
}

// New 复制原始私钥字符串，去掉首尾空白。
func New(raw string) *Credential {
	raw = strings.TrimSpace(raw)
	return &Credential{key: []byte(raw)}
}

// IsZero 判断凭证是否为空或已清除。
func (c *Credential) IsZero() bool {
	if c == nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.key) == 0
}

// Bytes 返回私钥材料的副本，调用方用完后应自行清零。
func (c *Credential) Bytes() []byte {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.key) == 0 {
		return nil
	}
	out := make([]byte, len(c.key))
	copy(out, c.key)
	return out
}

// Zero 覆盖内存中的私钥材料。
func (c *Credential) Zero() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.key {
		c.key[i] = 0
	}
	c.key = nil
}

// String 只返回脱敏后的形式。
func (c *Credential) String() string {
	if c.IsZero() {
		return "<empty>"
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Redact(string(c.key))
}

// LogValue 保证凭证写入 slog 时同样被脱敏。
func (c *Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// MarshalJSON 输出脱敏字符串，避免凭证随结构体被序列化。
func (c *Credential) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// Redact 保留前 6 位与后 4 位，中间省略。过短的值全部掩码。
func Redact(secret string) string {
	if len(secret) <= 10 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:6] + "..." + secret[len(secret)-4:]
}

// PrivateKey 将凭证解析为 secp256k1 私钥。
func PrivateKey(c *Credential) (*ecdsa.PrivateKey, error) {
	raw := c.Bytes()
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	defer wipe(raw)
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(string(raw), "0x"), "0X"))
}

// ToAddress 是凭证到链上地址的唯一推导入口。合法私钥返回对应的账户地址，
// derived 为 true；否则取 keccak256(凭证) 的后 20 字节，结果同样确定。
func ToAddress(c *Credential) (addr common.Address, derived bool) {
	if key, err := PrivateKey(c); err == nil {
		return crypto.PubkeyToAddress(key.PublicKey), true
	}
	raw := c.Bytes()
	defer wipe(raw)
	return common.BytesToAddress(crypto.Keccak256(raw)[12:]), false
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
