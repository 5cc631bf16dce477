// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/authd/internal/model"
)

// AccessTokenCookieName はセッショントークンを保持するCookieの名前。
const AccessTokenCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// currentUserContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var currentUserContextKey = contextKey("current_user")

// UserResolver はトークン文字列から認証済みユーザーを解決するインターフェース。
// auth.Serviceの部分集合として定義する。
type UserResolver interface {
	CurrentUser(ctx context.Context, tokenString string) (*model.User, error)
}

// ExtractAccessToken はリクエストからセッショントークンを取り出す。
// access_token Cookieを優先し、無ければAuthorization: Bearerヘッダーを参照する。
// どちらにも無い場合は空文字列を返す。
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authz := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok && token != "" {
		return token
	}

	return ""
}

// NewAuthMiddleware はリクエストのセッショントークンを検証し、
// 認証済みユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// トークン未提示・不正は401、トークンは有効だがユーザーが存在しない場合は404を返す。
func NewAuthMiddleware(resolver UserResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieまたはヘッダーからトークンを取得
			tokenString := ExtractAccessToken(r)

			// 2. トークンを検証し、ユーザーを解決
			user, err := resolver.CurrentUser(r.Context(), tokenString)
			if err != nil {
				WriteAPIError(w, err)
				return
			}

			// 3. 認証済みユーザーをコンテキストに注入
			ctx := context.WithValue(r.Context(), currentUserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func CurrentUserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(currentUserContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("authenticated user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := CurrentUserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, currentUserContextKey, user)
}
