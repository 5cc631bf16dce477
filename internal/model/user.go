// Package model はドメインモデルを定義する。
package model

import "time"

// AccountKind はアカウントの認証方式を表す。
// password_hashやgoogle_idの有無を暗黙の状態フラグとして扱わず、
// 明示的なタグとして保持する。
type AccountKind string

const (
	// AccountKindLocal はパスワード登録によるアカウントを示す。
	AccountKindLocal AccountKind = "local"
	// AccountKindFederated は外部IdP（Google）経由で作成されたアカウントを示す。
	AccountKindFederated AccountKind = "federated"
)

// User はサービス利用ユーザーを表す。
// PasswordHashはローカルアカウントのみ、GoogleIDはフェデレーテッド
// アカウントのみ値を持つ。IDは作成後に変更されない。
type User struct {
	ID           string
	Email        string
	FullName     string
	Kind         AccountKind
	PasswordHash string // bcryptハッシュ。フェデレーテッドアカウントでは空
	GoogleID     string // GoogleのOIDC subjectクレーム。ローカルアカウントでは空
	CreatedAt    time.Time
}

// HasPassword はパスワードログインが可能なアカウントかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
