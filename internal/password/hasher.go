// Package password はパスワードの一方向ハッシュ化と検証を提供する。
//
// bcryptを使用するため、ハッシュ値にはアルゴリズム・コスト・ソルトが
// 自己記述的に埋め込まれ、ソルトの別管理は不要。
// 同一パスワードでも呼び出しごとに異なるハッシュ値が生成される。
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はbcryptによるパスワードハッシュ化を行う。
type Hasher struct {
	cost int
}

// NewHasher はデフォルトコストのHasherを生成する。
func NewHasher() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost}
}

// NewHasherWithCost は指定コストのHasherを生成する。
// テストでは低コスト（bcrypt.MinCost）を使用して高速化できる。
func NewHasherWithCost(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードからソルト付きハッシュを生成する。
// 空のパスワードはエラーを返す。
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

// Verify は平文パスワードがハッシュと一致するかを検証する。
// 不正な形式のハッシュに対してもpanicせず、falseを返す。
// bcryptの比較は定数時間で行われる。
func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
