package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// Verifier 校验Webhook请求携带的密钥。
// 期望值和实际值都先经过HMAC，再用 hmac.Equal 比较，比较耗时与输入长度和内容无关。
type Verifier struct {
	key      []byte
	expected []byte
}

// NewVerifier 为给定的密钥创建校验器。每个校验器使用一个随机生成的32字节HMAC密钥。
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("webhook 密钥不能为空")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("无法生成HMAC密钥: %w", err)
	}
	v := &Verifier{key: key}
	v.expected = v.sign(secret)
	return v, nil
}

func (v *Verifier) sign(s string) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(s))
	return mac.Sum(nil)
}

// Validate 验证请求中的密钥是否匹配
func (v *Verifier) Validate(actual string) bool {
	if actual == "" {
		return false
	}
	return hmac.Equal(v.expected, v.sign(actual))
}

// GenerateSecret 生成一个密码学安全的随机密钥。
// 输出只包含 A-Z a-z 0-9 _ -，满足Telegram对 secret_token 的字符要求。
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("无法生成webhook密钥: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
