// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/authd/internal/model"
)

// ErrDuplicateEmail は一意制約違反（メールアドレスの重複）を示す。
// ストア境界でDB固有のエラーから変換され、生のDBエラーは上位層へ漏らさない。
var ErrDuplicateEmail = errors.New("email is already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateLocal はパスワード登録によるユーザーを作成する。
	// メールアドレスが既に存在する場合はErrDuplicateEmailを返す。
	// 同時登録のレースはDBの一意制約で検出される（上書きは発生しない）。
	CreateLocal(ctx context.Context, user *model.User) error

	// FindOrCreateFederated はメールアドレスで既存ユーザーを検索し、
	// 存在すればそのまま返す（FullNameやGoogleIDの上書きは行わない）。
	// 存在しなければGoogleID付き・パスワードなしのユーザーを新規作成する。
	// 同時作成のレースは一意制約違反を検出して既存レコードの再取得で解決する。
	FindOrCreateFederated(ctx context.Context, user *model.User) (*model.User, error)
}
