// Package token 提供了 ID token 的验证功能。
package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 表示 token 无效、签名不匹配或已过期。
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier 校验 bearer token 并返回稳定的用户 ID。
type Verifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

// DevVerifier 使用共享密钥签发和校验 HS256 token，仅用于本地开发和测试。
type DevVerifier struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	tokenDur  time.Duration // tokenDur 定义了 token 的有效期
}

// NewDevVerifier 创建一个新的 DevVerifier 实例。
func NewDevVerifier(secret string) *DevVerifier {
	return &DevVerifier{
		secretKey: []byte(secret),
		tokenDur:  24 * time.Hour,
	}
}

// GenerateToken 为给定用户签发一个 token，subject 即用户 ID。
func (m *DevVerifier) GenerateToken(uid string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify 验证 token 并返回其中的用户 ID。
func (m *DevVerifier) Verify(_ context.Context, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
