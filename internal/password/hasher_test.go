package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// Hash→Verifyがラウンドトリップすることを検証
func TestHasher_HashAndVerify_RoundTrip(t *testing.T) {
	h := NewHasherWithCost(bcrypt.MinCost)

	hash, err := h.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !h.Verify("correct-horse-battery-staple", hash) {
		t.Error("Verify() = false, want true for matching password")
	}
	if h.Verify("wrong-password", hash) {
		t.Error("Verify() = true, want false for non-matching password")
	}
}

// 同一パスワードでも呼び出しごとに異なるハッシュ値になること（ソルト）
func TestHasher_Hash_ProducesDifferentOutputs(t *testing.T) {
	h := NewHasherWithCost(bcrypt.MinCost)

	hash1, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	hash2, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if hash1 == hash2 {
		t.Error("two hashes of the same password should differ (random salt)")
	}

	// 両方とも元のパスワードで検証できること
	if !h.Verify("same-password", hash1) {
		t.Error("Verify() = false for first hash")
	}
	if !h.Verify("same-password", hash2) {
		t.Error("Verify() = false for second hash")
	}
}

// ハッシュ値が自己記述的であること（bcrypt形式プレフィックス）
func TestHasher_Hash_SelfDescribingFormat(t *testing.T) {
	h := NewHasherWithCost(bcrypt.MinCost)

	hash, err := h.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash = %q, want bcrypt format ($2...)", hash)
	}
}

// 空パスワードはエラーになること
func TestHasher_Hash_RejectsEmptyPassword(t *testing.T) {
	h := NewHasher()

	if _, err := h.Hash(""); err == nil {
		t.Error("Hash(\"\") should return an error")
	}
}

// 不正な形式のハッシュに対してVerifyがfalseを返すこと（panicしない）
func TestHasher_Verify_MalformedHashReturnsFalse(t *testing.T) {
	h := NewHasher()

	cases := []string{
		"",
		"not-a-bcrypt-hash",
		"$2a$broken",
		"plaintext",
	}
	for _, malformed := range cases {
		if h.Verify("password", malformed) {
			t.Errorf("Verify(password, %q) = true, want false", malformed)
		}
	}
}

// 範囲外のコスト指定はデフォルトコストに丸められること
func TestNewHasherWithCost_ClampsInvalidCost(t *testing.T) {
	h := NewHasherWithCost(999)
	if h.cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", h.cost, bcrypt.DefaultCost)
	}
}
