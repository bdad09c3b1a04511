package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// 交易所API密钥在配置文件里以密文存放，进程启动时用节点私钥解封。
// 封存格式：base64(nonce || ciphertext)，加密方持有节点公钥即可封存。

var credentialInfo = []byte("spreadflow-credential-v1")

type CredentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher 用本端私钥和对端公钥做ECDH，再经HKDF-SHA512衍生对称密钥
func NewCredentialCipher(privateKey, peerPublicKey, salt []byte) (*CredentialCipher, error) {
	if len(privateKey) != curve25519.ScalarSize || len(peerPublicKey) != curve25519.PointSize {
		return nil, errors.New("curve25519 key must be 32 bytes")
	}
	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, err
	}
	kdf := hkdf.New(sha512.New, shared, salt, credentialInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &CredentialCipher{aead: aead}, nil
}

// Seal 封存明文，nonce随机生成并拼在密文前
func (c *CredentialCipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open 解封Seal产出的密文
func (c *CredentialCipher) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	ns := c.aead.NonceSize()
	if len(raw) <= ns {
		return "", errors.New("sealed credential too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// GenCurve25519Key 生成节点密钥对，私钥下发到节点，公钥给封存工具
func GenCurve25519Key() (privateKey, publicKey []byte, err error) {
	privateKey = make([]byte, curve25519.ScalarSize)
	if _, err = rand.Read(privateKey); err != nil {
		return
	}
	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	return
}
