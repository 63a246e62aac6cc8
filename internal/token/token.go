// Package token はセッショントークン（HS256 JWT）の発行と検証を提供する。
// サーバー側に失効リストは持たず、ログアウトはクライアント側でのトークン破棄で行う。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL はトークンの既定有効期間（7日）。
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrMissingToken はトークンが提示されなかったことを表す（401）。
	ErrMissingToken = errors.New("token is missing")
	// ErrInvalidToken はトークンが不正または期限切れであることを表す（403）。
	ErrInvalidToken = errors.New("token is invalid or expired")
)

// Claims はセッショントークンのクレーム。SubjectにローカルユーザーIDを格納する。
type Claims struct {
	jwt.RegisteredClaims
}

// UserID はトークンに紐付くローカルユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// Config はトークン発行の設定。
type Config struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Manager はセッショントークンの発行と検証を行う。
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewManager はManagerを生成する。TTLが0以下の場合はDefaultTTLを使う。
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Issue はユーザーIDに紐付くトークンを発行し、トークン文字列と有効期限を返す。
func (m *Manager) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user ID is required")
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンを検証し、クレームを返す。
// 空文字の場合はErrMissingToken、それ以外の検証失敗はErrInvalidTokenをラップして返す。
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
