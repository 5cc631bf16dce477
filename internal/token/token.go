// Package token は署名付きセッショントークンの発行と検証を提供する。
//
// トークンはHS256署名のJWTで、subjectクレームにユーザーID、
// カスタムクレームにメールアドレスを保持する。
// サーバー側での永続化は行わず、失効は有効期限のみで管理する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL はアクセストークンのデフォルト有効期間。
const DefaultTTL = 60 * time.Minute

var (
	// ErrMissingToken はトークンが提示されなかったことを示す。
	ErrMissingToken = errors.New("token is missing")

	// ErrInvalidToken は不正なトークンを示す。
	// 形式不正・署名不一致・期限切れを区別しない
	// （どの検証に失敗したかを呼び出し元へ漏らさない）。
	ErrInvalidToken = errors.New("token is invalid")
)

// Claims はセッショントークンに埋め込むクレームセット。
// ユーザーIDはRegisteredClaimsのSubjectで保持する。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID はsubjectクレームからユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// Service はトークンの発行・検証を行う。
// 署名シークレットは起動時に一度注入され、以降変更されない。
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService はServiceを生成する。
// ttlが0以下の場合はDefaultTTLを使用する。
// シークレットの存在確認は起動時にconfig.Loadで行われるが、
// 署名時にも防御的に検証する。
func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL はトークンの有効期間を返す。CookieのMax-Age算出に使用する。
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue はユーザーID・メールアドレスを含む署名付きトークンを発行する。
// シークレット未設定の場合はエラーを返す（設定不備の防御ガード）。
func (s *Service) Issue(userID, email string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("signing secret is not configured")
	}

	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 3つの結果を区別する:
//   - 空文字列: ErrMissingToken（認証情報の未提示）
//   - 検証失敗: ErrInvalidToken（形式不正・署名不一致・期限切れを一括）
//   - 成功: クレームを返す
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("signing secret is not configured")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// 署名アルゴリズムの固定（alg none攻撃やRS256へのすり替えを拒否）
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
