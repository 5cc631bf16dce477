package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/authd/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, full_name, account_kind, password_hash, google_id, created_at`

// scanUser は1行をmodel.Userに変換する。
// full_name / password_hash / google_id はNULL許容カラムのためsql.NullStringで受ける。
// アカウント種別はgoogle_idの有無からの導出ではなく、account_kindカラムをそのまま読む。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var fullName, passwordHash, googleID sql.NullString
	var kind string

	err := row.Scan(&user.ID, &user.Email, &fullName, &kind, &passwordHash, &googleID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.FullName = fullName.String
	user.Kind = model.AccountKind(kind)
	user.PasswordHash = passwordHash.String
	user.GoogleID = googleID.String

	return user, nil
}

// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// CreateLocal はパスワード登録によるユーザーを作成する。
// 一意制約違反はErrDuplicateEmailに変換して返す。
func (r *PostgresUserRepo) CreateLocal(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, account_kind, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, nullable(user.FullName), string(model.AccountKindLocal), user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindOrCreateFederated はメールアドレスで既存ユーザーを検索し、
// 存在すればそのまま返す。存在しなければGoogleID付きで新規作成する。
// SELECT→INSERTの間に別リクエストが同一メールを作成した場合は
// 一意制約違反を検出し、既存レコードを再取得して返す。
func (r *PostgresUserRepo) FindOrCreateFederated(ctx context.Context, user *model.User) (*model.User, error) {
	existing, err := r.FindByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, account_kind, google_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, nullable(user.FullName), string(model.AccountKindFederated), user.GoogleID, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// 同時作成レース: 勝った側のレコードを返す
			existing, findErr := r.FindByEmail(ctx, user.Email)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to insert federated user: %w", err)
	}

	user.Kind = model.AccountKindFederated
	return user, nil
}

// isUniqueViolation はPostgreSQLの一意制約違反（SQLSTATE 23505）かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// nullable は空文字列をNULLとして格納するための変換。
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
