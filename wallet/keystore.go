package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// Keystore Keystore文件结构
type Keystore struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
	Address string `json:"address"`
	Crypto  Crypto `json:"crypto"`
}

// Crypto 加密信息
type Crypto struct {
	Cipher       string       `json:"cipher"`
	CipherText   string       `json:"ciphertext"`
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

// CipherParams 加密参数
type CipherParams struct {
	IV string `json:"iv"`
}

// KDFParams scrypt 参数
type KDFParams struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

// scrypt 默认参数
const (
	scryptN     = 1 << 18
	scryptR     = 8
	scryptP     = 1
	scryptDKLen = 32
)

// KeystoreManager Keystore管理器
type KeystoreManager struct {
	keystoreDir string
}

// NewKeystoreManager 创建Keystore管理器
func NewKeystoreManager(keystoreDir string) (*KeystoreManager, error) {
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}

	return &KeystoreManager{
		keystoreDir: keystoreDir,
	}, nil
}

// Save 保存私钥到Keystore
//
// **流程**：
// 1. 生成随机 salt 和 IV
// 2. scrypt 派生密钥
// 3. AES-128-CTR 加密私钥，HMAC-SHA256 计算 MAC
// 4. 序列化为 JSON 写入文件（0600权限）
//
// 派生密钥等秘密材料在所有退出路径上清零。
func (km *KeystoreManager) Save(address string, privateKey []byte, password string) (string, error) {
	// 1. 生成随机salt和IV
	salt := make([]byte, 32)
	iv := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	// 2. 派生密钥
	key, err := deriveKey(password, salt)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	defer zeroBytes(key)

	// 3. 加密私钥并计算MAC
	ciphertext, err := encryptAES(key[:16], privateKey, iv)
	if err != nil {
		return "", fmt.Errorf("encrypt private key: %w", err)
	}
	mac := computeMAC(key[16:], ciphertext)

	// 4. 构建并保存Keystore
	ks := &Keystore{
		Version: 1,
		ID:      generateID(),
		Address: address,
		Crypto: Crypto{
			Cipher:     "aes-128-ctr",
			CipherText: hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{
				IV: hex.EncodeToString(iv),
			},
			KDF: "scrypt",
			KDFParams: KDFParams{
				N:     scryptN,
				R:     scryptR,
				P:     scryptP,
				DKLen: scryptDKLen,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac),
		},
	}

	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode keystore: %w", err)
	}

	keystorePath := filepath.Join(km.keystoreDir, fmt.Sprintf("%s.json", address))
	if err := os.WriteFile(keystorePath, data, 0600); err != nil {
		return "", fmt.Errorf("write keystore file: %w", err)
	}

	return keystorePath, nil
}

// Load 从Keystore加载私钥
func (km *KeystoreManager) Load(address string, password string) ([]byte, error) {
	// 1. 读取并解析Keystore文件
	keystorePath := filepath.Join(km.keystoreDir, fmt.Sprintf("%s.json", address))
	data, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}

	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if ks.Crypto.KDF != "scrypt" {
		return nil, fmt.Errorf("unsupported kdf: %s", ks.Crypto.KDF)
	}

	// 2. 提取参数
	salt, err := hex.DecodeString(ks.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	iv, err := hex.DecodeString(ks.Crypto.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(ks.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	// 3. 派生密钥
	key, err := scrypt.Key([]byte(password), salt, ks.Crypto.KDFParams.N, ks.Crypto.KDFParams.R, ks.Crypto.KDFParams.P, scryptDKLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer zeroBytes(key)

	// 4. 验证MAC（常量时间比较）
	expectedMAC := computeMAC(key[16:], ciphertext)
	actualMAC, err := hex.DecodeString(ks.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("decode mac: %w", err)
	}
	if !hmac.Equal(expectedMAC, actualMAC) {
		return nil, fmt.Errorf("invalid password")
	}

	// 5. 解密私钥
	privateKey, err := decryptAES(key[:16], ciphertext, iv)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key: %w", err)
	}

	return privateKey, nil
}

// deriveKey scrypt 密钥派生
func deriveKey(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
}

// encryptAES AES-CTR加密
func encryptAES(key, plaintext, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	stream := cipher.NewCTR(block, iv)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	return ciphertext, nil
}

// decryptAES AES-CTR解密
func decryptAES(key, ciphertext, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	stream := cipher.NewCTR(block, iv)
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)

	return plaintext, nil
}

// computeMAC HMAC-SHA256
func computeMAC(key, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// zeroBytes 清零秘密材料
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// generateID 生成ID
func generateID() string {
	id := make([]byte, 16)
	rand.Read(id)
	return hex.EncodeToString(id)
}
