// Package auth はパスワード認証、OAuth認証フロー、トークン発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authd/internal/model"
	"github.com/hitoshi/authd/internal/password"
	"github.com/hitoshi/authd/internal/repository"
	"github.com/hitoshi/authd/internal/security"
	"github.com/hitoshi/authd/internal/token"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// LoginURL はOAuth認可リクエストURLを生成する。
	LoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Service は認証に関するビジネスロジックを提供する。
// 1リクエスト内の処理は厳密に逐次実行され、リクエスト間で共有する
// 可変状態はUserRepositoryの背後の永続ストアのみ。
type Service struct {
	users     repository.UserRepository
	hasher    *password.Hasher
	tokens    *token.Service
	oauth     OAuthProvider
	sanitizer security.NameSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	hasher *password.Hasher,
	tokens *token.Service,
	oauth OAuthProvider,
	sanitizer security.NameSanitizerService,
) *Service {
	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		oauth:     oauth,
		sanitizer: sanitizer,
	}
}

// Register は新規ユーザーをパスワード付きで登録する。
// メールアドレスが既に存在する場合はDUPLICATE_EMAILエラーを返す。
// 事前チェックをすり抜けた同時登録のレースもストアの一意制約で検出され、
// 同じDUPLICATE_EMAILエラーとして返される。
func (s *Service) Register(ctx context.Context, email, plaintext, fullName string) (*model.User, error) {
	if err := validateEmail(email); err != nil {
		return nil, model.NewInvalidRequestError("メールアドレスの形式が正しくありません")
	}
	if plaintext == "" {
		return nil, model.NewInvalidRequestError("パスワードは必須です")
	}

	// 1. 既存チェック
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	// 2. パスワードのハッシュ化
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. 作成
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     s.sanitizer.Sanitize(fullName),
		Kind:         model.AccountKindLocal,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateLocal(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// 同時登録レース: 事前チェックと同じエラーに正規化する
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Login はメールアドレスとパスワードを検証し、セッショントークンを発行する。
// ユーザー不在・フェデレーテッド専用アカウント・パスワード不一致は
// すべて同一のINVALID_CREDENTIALSエラーに集約する
// （アカウント列挙攻撃への対策）。
func (s *Service) Login(ctx context.Context, email, plaintext string) (string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.HasPassword() {
		return "", model.NewInvalidCredentialsError()
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		slog.Warn("login failed: password mismatch", slog.String("user_id", user.ID))
		return "", model.NewInvalidCredentialsError()
	}

	accessToken, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))

	return accessToken, nil
}

// LoginURL はOAuth認可リクエストURLを生成する。
func (s *Service) LoginURL(state string) string {
	return s.oauth.LoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// 同一メールアドレスの既存ユーザーがいればそのユーザーとしてログインし、
// いなければGoogleID付き・パスワードなしのユーザーを新規作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (string, *model.User, error) {
	// 1. 認可コードをトークンに交換し、IDクレームを取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		return "", nil, model.NewFederationFailedError()
	}
	if userInfo.Email == "" {
		return "", nil, model.NewFederationFailedError()
	}

	// 2. メールアドレスで検索し、存在しなければ作成
	candidate := &model.User{
		ID:        uuid.New().String(),
		Email:     userInfo.Email,
		FullName:  s.sanitizer.Sanitize(userInfo.Name),
		Kind:      model.AccountKindFederated,
		GoogleID:  userInfo.ProviderUserID,
		CreatedAt: time.Now(),
	}
	user, err := s.users.FindOrCreateFederated(ctx, candidate)
	if err != nil {
		return "", nil, fmt.Errorf("failed to find or create federated user: %w", err)
	}

	// 3. トークンを発行
	accessToken, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("federated login completed",
		slog.String("user_id", user.ID),
		slog.String("provider", userInfo.Provider),
	)

	return accessToken, user, nil
}

// CurrentUser はセッショントークンを検証し、対応するユーザーを返す。
// トークンの未提示・不正はINVALID_TOKEN、
// トークンは有効だがユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) CurrentUser(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}

	user, err := s.users.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// TokenTTL は発行するトークンの有効期間を返す。CookieのMax-Age算出用。
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}
