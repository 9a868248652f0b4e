// Package envelope protects opaque payloads with a passphrase-derived key.
//
// Payloads are sealed with AES-256-GCM using a fresh 16-byte IV per call. The
// IV travels next to the ciphertext; losing it makes the payload unrecoverable.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	xerrors "AgentPayroll/internal/errors"
)

const (
	// IVSize 是每次加密生成的随机 IV 长度。
	IVSize = 16
	// KeySize 是派生出的对称密钥长度。
	KeySize = 32

	kdfInfo = "agentpayroll-envelope-v1"
)

// Payload 是加密结果，IV 与密文均为十六进制编码。
type Payload struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// DeriveKey 从任意长度的口令派生 32 字节密钥，相同口令得到相同密钥。
func DeriveKey(passphrase []byte) [KeySize]byte {
	var key [KeySize]byte
	reader := hkdf.New(sha256.New, passphrase, nil, []byte(kdfInfo))
	// HKDF-SHA256 可输出最多 255*32 字节，这里不会失败。
	_, _ = io.ReadFull(reader, key[:])
	return key
}

// Encrypt 使用口令加密 plaintext，每次调用都会生成新的 IV。
func Encrypt(plaintext, passphrase []byte) (Payload, error) {
	aead, err := newAEAD(passphrase)
	if err != nil {
		return Payload{}, err
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Payload{}, fmt.Errorf("生成 IV 失败: %w", err)
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	return Payload{
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(sealed),
	}, nil
}

// Decrypt 还原 Encrypt 的输出。口令、IV 不匹配或密文被篡改时返回 DecryptionError。
func Decrypt(payload Payload, passphrase []byte) ([]byte, error) {
	iv, err := hex.DecodeString(payload.IV)
	if err != nil || len(iv) != IVSize {
		return nil, xerrors.New(xerrors.CodeDecryption, "IV 格式无效")
	}
	sealed, err := hex.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeDecryption, err, "密文格式无效")
	}
	aead, err := newAEAD(passphrase)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeDecryption, err, "解密失败，口令或 IV 不匹配")
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newAEAD(passphrase []byte) (cipher.AEAD, error) {
	key := DeriveKey(passphrase)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("初始化 AES 失败: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("初始化 GCM 失败: %w", err)
	}
	return aead, nil
}
