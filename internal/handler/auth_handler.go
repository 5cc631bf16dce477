// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/authd/internal/metrics"
	"github.com/hitoshi/authd/internal/middleware"
	"github.com/hitoshi/authd/internal/model"
)

const oauthStateCookie = "oauth_state"

// oauthStateMaxAge はstate Cookieの有効期間（秒）。認可フロー1往復分だけ保持する。
const oauthStateMaxAge = 600

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, plaintext, fullName string) (*model.User, error)
	Login(ctx context.Context, email, plaintext string) (string, error)
	LoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (string, *model.User, error)
	CurrentUser(ctx context.Context, tokenString string) (*model.User, error)
	TokenTTL() time.Duration
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string // 認証完了後のリダイレクト先
	CookieDomain string
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報レスポンスのボディ。
type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// tokenResponse はトークン発行レスポンスのボディ。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register は新規ユーザーをパスワード付きで登録する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("JSONボディを解析できません"))
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		h.metrics.RecordRegistration(metrics.OutcomeFailure)
		middleware.WriteAPIError(w, err)
		return
	}

	h.metrics.RecordRegistration(metrics.OutcomeSuccess)

	writeJSON(w, http.StatusOK, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
	})
}

// Login はメールアドレスとパスワードでログインし、セッショントークンを発行する。
// トークンはレスポンスボディとHTTP Only Cookieの両方で返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("JSONボディを解析できません"))
		return
	}

	accessToken, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin(metrics.MethodPassword, metrics.OutcomeFailure)
		middleware.WriteAPIError(w, err)
		return
	}

	h.metrics.RecordLogin(metrics.MethodPassword, metrics.OutcomeSuccess)
	h.setAccessTokenCookie(w, accessToken)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
	})
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.LoginURL(state), http.StatusFound)
}

// GoogleCallback はGoogle OAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.metrics.RecordLogin(metrics.MethodGoogle, metrics.OutcomeFailure)
		middleware.WriteAPIError(w, model.NewFederationFailedError())
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		h.metrics.RecordLogin(metrics.MethodGoogle, metrics.OutcomeFailure)
		middleware.WriteAPIError(w, model.NewFederationFailedError())
		return
	}

	// 3. 認証処理とトークン発行
	accessToken, user, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		h.metrics.RecordLogin(metrics.MethodGoogle, metrics.OutcomeFailure)
		middleware.WriteAPIError(w, err)
		return
	}

	h.metrics.RecordLogin(metrics.MethodGoogle, metrics.OutcomeSuccess)
	h.setAccessTokenCookie(w, accessToken)

	slog.Info("oauth callback completed", slog.String("user_id", user.ID))

	// 4. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusFound)
}

// Logout はセッションCookieを削除する。
// トークンはサーバー側に状態を持たないため、Cookieの削除のみを行う。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL, http.StatusFound)
}

// Me は現在のログインユーザー情報を返す。
// 認証ミドルウェアが注入したユーザーをそのまま返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUserFromContext(r.Context())
	if err != nil {
		// 認証ミドルウェアを通過していれば到達しない
		slog.Error("authenticated user missing from context", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
	})
}

// setAccessTokenCookie はセッショントークンをHTTP Only Cookieとして設定する。
// Max-Ageはトークンの有効期間に合わせる。
func (h *AuthHandler) setAccessTokenCookie(w http.ResponseWriter, accessToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookieName,
		Value:    accessToken,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.service.TokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
