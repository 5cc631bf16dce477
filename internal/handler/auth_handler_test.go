package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authd/internal/metrics"
	"github.com/hitoshi/authd/internal/middleware"
	"github.com/hitoshi/authd/internal/model"
)

// mockAuthService はAuthServiceInterfaceのテスト用モック。
type mockAuthService struct {
	registerFn       func(ctx context.Context, email, plaintext, fullName string) (*model.User, error)
	loginFn          func(ctx context.Context, email, plaintext string) (string, error)
	loginURLFn       func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (string, *model.User, error)
	currentUserFn    func(ctx context.Context, tokenString string) (*model.User, error)
	tokenTTL         time.Duration
}

func (m *mockAuthService) Register(ctx context.Context, email, plaintext, fullName string) (*model.User, error) {
	return m.registerFn(ctx, email, plaintext, fullName)
}

func (m *mockAuthService) Login(ctx context.Context, email, plaintext string) (string, error) {
	return m.loginFn(ctx, email, plaintext)
}

func (m *mockAuthService) LoginURL(state string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (string, *model.User, error) {
	return m.handleCallbackFn(ctx, code)
}

func (m *mockAuthService) CurrentUser(ctx context.Context, tokenString string) (*model.User, error) {
	return m.currentUserFn(ctx, tokenString)
}

func (m *mockAuthService) TokenTTL() time.Duration {
	if m.tokenTTL == 0 {
		return time.Hour
	}
	return m.tokenTTL
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func newTestHandler(service AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(service, AuthHandlerConfig{
		BaseURL:      "https://app.example.com",
		CookieSecure: true,
	}, metrics.NewCollector(prometheus.NewRegistry()))
}

// findCookie はレスポンスから指定された名前のCookieを探す。
func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- Register ---

func TestRegisterHandler_Success(t *testing.T) {
	service := &mockAuthService{
		registerFn: func(ctx context.Context, email, plaintext, fullName string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, FullName: fullName}, nil
		},
	}
	h := newTestHandler(service)

	body := `{"email":"a@example.com","password":"pw1","full_name":"Taro"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "user-1" || resp.Email != "a@example.com" || resp.FullName != "Taro" {
		t.Errorf("response = %+v, want id/email/full_name populated", resp)
	}
}

func TestRegisterHandler_DuplicateEmail(t *testing.T) {
	service := &mockAuthService{
		registerFn: func(ctx context.Context, email, plaintext, fullName string) (*model.User, error) {
			return nil, model.NewDuplicateEmailError()
		},
	}
	h := newTestHandler(service)

	body := `{"email":"a@example.com","password":"pw1"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var errResp middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Code != model.ErrCodeDuplicateEmail {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeDuplicateEmail)
	}
}

func TestRegisterHandler_MalformedJSON(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// --- Login ---

func TestLoginHandler_Success(t *testing.T) {
	service := &mockAuthService{
		loginFn: func(ctx context.Context, email, plaintext string) (string, error) {
			return "issued-token", nil
		},
		tokenTTL: time.Hour,
	}
	h := newTestHandler(service)

	body := `{"email":"a@example.com","password":"pw1"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AccessToken != "issued-token" {
		t.Errorf("access_token = %q, want %q", resp.AccessToken, "issued-token")
	}
	if resp.TokenType != "bearer" {
		t.Errorf("token_type = %q, want %q", resp.TokenType, "bearer")
	}

	// トークンCookieの属性を検証
	cookie := findCookie(t, rec, middleware.AccessTokenCookieName)
	if cookie == nil {
		t.Fatal("access_token cookie should be set")
	}
	if cookie.Value != "issued-token" {
		t.Errorf("cookie value = %q, want %q", cookie.Value, "issued-token")
	}
	if !cookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie SameSite = %v, want Lax", cookie.SameSite)
	}
	if !cookie.Secure {
		t.Error("cookie should be Secure when CookieSecure is enabled")
	}
	if cookie.MaxAge != 3600 {
		t.Errorf("cookie MaxAge = %d, want 3600", cookie.MaxAge)
	}
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	service := &mockAuthService{
		loginFn: func(ctx context.Context, email, plaintext string) (string, error) {
			return "", model.NewInvalidCredentialsError()
		},
	}
	h := newTestHandler(service)

	body := `{"email":"a@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if cookie := findCookie(t, rec, middleware.AccessTokenCookieName); cookie != nil {
		t.Error("access_token cookie should not be set on failure")
	}
}

// --- Google OAuthフロー ---

func TestGoogleLoginHandler_RedirectsWithState(t *testing.T) {
	var passedState string
	service := &mockAuthService{
		loginURLFn: func(state string) string {
			passedState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := newTestHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	rec := httptest.NewRecorder()
	h.GoogleLogin(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "https://accounts.google.com/") {
		t.Errorf("Location = %q, want Google authorization URL", loc)
	}

	// stateがCookieと認可URLで一致すること
	cookie := findCookie(t, rec, oauthStateCookie)
	if cookie == nil {
		t.Fatal("oauth_state cookie should be set")
	}
	if cookie.Value != passedState {
		t.Errorf("state cookie = %q, LoginURL state = %q, want equal", cookie.Value, passedState)
	}
	if !cookie.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}
}

func TestGoogleCallbackHandler_Success(t *testing.T) {
	service := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (string, *model.User, error) {
			if code != "auth-code" {
				t.Errorf("code = %q, want %q", code, "auth-code")
			}
			return "issued-token", &model.User{ID: "user-1", Email: "b@example.com"}, nil
		},
	}
	h := newTestHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	rec := httptest.NewRecorder()
	h.GoogleCallback(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "https://app.example.com" {
		t.Errorf("Location = %q, want %q", loc, "https://app.example.com")
	}

	if cookie := findCookie(t, rec, middleware.AccessTokenCookieName); cookie == nil || cookie.Value != "issued-token" {
		t.Error("access_token cookie should be set with the issued token")
	}

	// stateクッキーが削除されること
	if cookie := findCookie(t, rec, oauthStateCookie); cookie == nil || cookie.MaxAge >= 0 {
		t.Error("oauth_state cookie should be cleared")
	}
}

func TestGoogleCallbackHandler_StateMismatch(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	rec := httptest.NewRecorder()
	h.GoogleCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var errResp middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Code != model.ErrCodeFederationFailed {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeFederationFailed)
	}
}

func TestGoogleCallbackHandler_MissingCode(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	rec := httptest.NewRecorder()
	h.GoogleCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGoogleCallbackHandler_ExchangeFailure(t *testing.T) {
	service := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (string, *model.User, error) {
			return "", nil, model.NewFederationFailedError()
		},
	}
	h := newTestHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=bad-code&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	rec := httptest.NewRecorder()
	h.GoogleCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// --- Logout ---

func TestLogoutHandler_ClearsCookie(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookieName, Value: "issued-token"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusFound)
	}

	cookie := findCookie(t, rec, middleware.AccessTokenCookieName)
	if cookie == nil {
		t.Fatal("access_token cookie should be present for deletion")
	}
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Error("access_token cookie should be cleared")
	}
}

// --- Me ---

func TestMeHandler_ReturnsAuthenticatedUser(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &model.User{
		ID:       "user-1",
		Email:    "a@example.com",
		FullName: "Taro",
	}))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "user-1" || resp.Email != "a@example.com" || resp.FullName != "Taro" {
		t.Errorf("response = %+v, want authenticated user fields", resp)
	}
}
