package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAPISecretMissing = errors.New("api jwt secret missing")
	ErrAPITokenInvalid  = errors.New("api token invalid")
)

// APIClaims 账本接口访问令牌声明
type APIClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// AuthService 账本接口令牌签发与校验
type AuthService struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthService 创建令牌服务，ttl<=0 时令牌不过期
func NewAuthService(secret string, ttl time.Duration) *AuthService {
	return &AuthService{secret: []byte(strings.TrimSpace(secret)), ttl: ttl}
}

// GenerateToken 为调用方签发令牌
func (s *AuthService) GenerateToken(subject, scope string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrAPISecretMissing
	}
	now := time.Now()
	claims := APIClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(subject),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken 解析并校验令牌
func (s *AuthService) ParseToken(tokenString string) (*APIClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrAPISecretMissing
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &APIClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrAPITokenInvalid, err)
	}
	claims, ok := token.Claims.(*APIClaims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrAPITokenInvalid
	}
	return claims, nil
}
