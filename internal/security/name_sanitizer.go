// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService はユーザーの表示名をサニタイズし、
// 格納時および応答時のXSSリスクからフロントエンドを保護する。
// 表示名は登録リクエストのfull_nameと外部IdPのnameクレームの
// 2経路から入るため、保存前に必ず通す。
package security

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxNameLength は表示名の最大文字数（rune単位）。
const maxNameLength = 255

// NameSanitizerService は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizerService interface {
	// Sanitize は表示名からHTMLタグを全て除去し、前後の空白を削除する。
	// 255文字を超える場合は切り詰める。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyにより全てのHTMLタグと属性が除去される。
// 表示名はプレーンテキストとして扱うため、許可タグは存在しない。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名をサニタイズして返す。
func (s *nameSanitizer) Sanitize(name string) string {
	cleaned := strings.TrimSpace(s.policy.Sanitize(name))

	if utf8.RuneCountInString(cleaned) > maxNameLength {
		runes := []rune(cleaned)
		cleaned = string(runes[:maxNameLength])
	}

	return cleaned
}

// compile-time interface check
var _ NameSanitizerService = (*nameSanitizer)(nil)
