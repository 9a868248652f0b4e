package backend

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "AgentPayroll/internal/errors"
)

// VerifyPersonalSignature 校验 EIP-191 personal_sign 签名是否由 address 对应的私钥产生。
// 输入格式错误返回 ValidationError；签名无法恢复公钥时返回 false。
func VerifyPersonalSignature(message, signature, address string) (bool, error) {
	if !common.IsHexAddress(strings.TrimSpace(address)) {
		return false, xerrors.Validation("签名地址格式无效")
	}
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return false, xerrors.Validation("签名必须是 0x 前缀的十六进制字符串")
	}
	if len(sig) != crypto.SignatureLength {
		return false, xerrors.Validation("签名长度必须为 65 字节")
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false, nil
	}
	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(address), nil
}
