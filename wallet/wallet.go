package wallet

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// Wallet 钱包接口（签名能力的边界）
//
// 签名是定宽的（r || s，各32字节），与 Offer 的签名列表宽度约定一致。
type Wallet interface {
	// Address 获取钱包地址（20字节）
	Address() []byte

	// SignMessage 签名消息（内部先做 SHA-256）
	SignMessage(msg []byte) ([]byte, error)

	// SignHash 签名给定哈希（供高级调用方使用）
	SignHash(hash []byte) ([]byte, error)

	// PrivateKey 获取私钥（谨慎使用）
	PrivateKey() *ecdsa.PrivateKey
}

// SimpleWallet 简单钱包实现（用于测试和开发）
type SimpleWallet struct {
	privateKey *ecdsa.PrivateKey
	address    []byte
	createdAt  time.Time
}

// NewWallet 创建新钱包
func NewWallet() (Wallet, error) {
	// 生成 secp256k1 私钥（与链上使用的曲线保持一致）
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}

	return &SimpleWallet{
		privateKey: privateKey,
		address:    deriveAddress(privateKey),
		createdAt:  time.Now(),
	}, nil
}

// NewWalletFromPrivateKey 从私钥创建钱包
func NewWalletFromPrivateKey(privateKeyHex string) (Wallet, error) {
	privateKeyHex = hexRemovePrefix(privateKeyHex)

	privateKeyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	// ECDSA 私钥必须是32字节
	if len(privateKeyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key length: expected 32 bytes, got %d", len(privateKeyBytes))
	}

	privateKey, err := ethcrypto.ToECDSA(privateKeyBytes)
	// 无论成败都清零中间私钥字节
	for i := range privateKeyBytes {
		privateKeyBytes[i] = 0
	}
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 private key failed: %w", err)
	}

	return &SimpleWallet{
		privateKey: privateKey,
		address:    deriveAddress(privateKey),
		createdAt:  time.Now(),
	}, nil
}

// Address 获取钱包地址
func (w *SimpleWallet) Address() []byte {
	return w.address
}

// SignMessage 签名消息
func (w *SimpleWallet) SignMessage(msg []byte) ([]byte, error) {
	hash := sha256.Sum256(msg)
	return w.SignHash(hash[:])
}

// SignHash 签名哈希值
//
// 序列化签名为 r || s（64字节定宽，r 和 s 前导补零）。
func (w *SimpleWallet) SignHash(hash []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, w.privateKey, hash)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}

	signature := make([]byte, 64)
	r.FillBytes(signature[:32])
	s.FillBytes(signature[32:])
	return signature, nil
}

// PrivateKey 获取私钥
func (w *SimpleWallet) PrivateKey() *ecdsa.PrivateKey {
	return w.privateKey
}

// deriveAddress 从私钥派生地址
//
// 使用 secp256k1 压缩公钥的 HASH160 作为20字节地址，
// 与链上地址管理器的语义保持一致。
func deriveAddress(privateKey *ecdsa.PrivateKey) []byte {
	compressed := ethcrypto.CompressPubkey(&privateKey.PublicKey)

	sha := sha256.Sum256(compressed)
	r := ripemd160.New()
	_, _ = r.Write(sha[:])
	return r.Sum(nil) // 20 字节
}

// hexRemovePrefix 移除十六进制字符串的0x前缀
func hexRemovePrefix(hexStr string) string {
	if len(hexStr) >= 2 && hexStr[:2] == "0x" {
		return hexStr[2:]
	}
	return hexStr
}
