package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/hitoshi/portal/internal/audit"
	"github.com/hitoshi/portal/internal/auth"
	"github.com/hitoshi/portal/internal/middleware"
	"github.com/hitoshi/portal/internal/model"
)

// gCSRFCookieName はGoogle Identity Servicesがリダイレクト方式で発行するCSRF Cookie名。
const gCSRFCookieName = "g_csrf_token"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	ResolveIdentity(ctx context.Context, previousSessionID, sessionID, credential string) (*model.Identity, error)
	RequestAccessGrant(ctx context.Context, sessionID string, mode model.GrantMode) (string, error)
	CompleteAccessGrant(ctx context.Context, sessionID, state, code, providerErr string) (model.GrantState, error)
	Logout(ctx context.Context, sessionID string) error
	Status(ctx context.Context, sessionID string) (*model.SessionStatus, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインインとアクセス許可のHTTPハンドラー。
type AuthHandler struct {
	service      AuthServiceInterface
	config       AuthHandlerConfig
	newSessionID func() (string, error)
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:      service,
		config:       config,
		newSessionID: auth.GenerateSessionID,
	}
}

// credentialRequest はJSON形式のサインインリクエスト。
type credentialRequest struct {
	Credential string `json:"credential"`
	GCSRFToken string `json:"g_csrf_token"`
}

// sessionResponse はGET /auth/sessionのレスポンス。
type sessionResponse struct {
	*model.SessionStatus
	Granted bool `json:"granted"`
}

// Credential はGoogleサインインのcredentialを受け取り、Identityを確定する。
// POST /auth/google/credential
//
// フォーム送信（リダイレクト方式）の場合は成功時にBASE_URLへ303で戻す。
// JSONの場合はIdentityをJSONで返す。
func (h *AuthHandler) Credential(w http.ResponseWriter, r *http.Request) {
	isForm := !isJSONRequest(r)

	var req credentialRequest
	if isForm {
		if err := r.ParseForm(); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidCredentialError("リクエストを解析できません"))
			return
		}
		req.Credential = r.PostForm.Get("credential")
		req.GCSRFToken = r.PostForm.Get(gCSRFCookieName)
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidCredentialError("リクエストを解析できません"))
		return
	}

	// g_csrf_token Cookieがある場合はボディの値と一致すること
	if c, err := r.Cookie(gCSRFCookieName); err == nil && c.Value != "" {
		if subtle.ConstantTimeCompare([]byte(c.Value), []byte(req.GCSRFToken)) != 1 {
			slog.Warn("g_csrf_token mismatch", slog.String("path", r.URL.Path))
			middleware.WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
				Code:     middleware.ErrCodeCSRFInvalid,
				Message:  "CSRFトークンの検証に失敗しました。",
				Category: "auth",
				Action:   "ページを再読み込みしてから再度サインインしてください。",
			})
			return
		}
	}

	// サインインのたびにセッションIDを発行し直す
	sessionID, err := h.newSessionID()
	if err != nil {
		slog.Error("failed to generate session ID", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	previousSessionID := middleware.SessionIDFromContext(r.Context())

	identity, err := h.service.ResolveIdentity(r.Context(), previousSessionID, sessionID, req.Credential)
	if err != nil {
		var apiErr *model.APIError
		if isForm && errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidCredential {
			http.Redirect(w, r, h.redirectURL("signin", "failed"), http.StatusSeeOther)
			return
		}
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, sessionID, h.config.SessionMaxAge)

	if isForm {
		http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// Grant はアクセス許可の取得を開始し、認可サーバーへリダイレクトする。
// GET /auth/google/grant?mode=silent|interactive
func (h *AuthHandler) Grant(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	rawMode := r.URL.Query().Get("mode")
	mode, ok := model.ParseGrantMode(rawMode)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidGrantModeError(rawMode))
		return
	}

	authURL, err := h.service.RequestAccessGrant(r.Context(), sessionID, mode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback は認可サーバーからのコールバックを処理し、BASE_URLへ戻す。
// 失敗時は?grant=failedを付ける。失敗の詳細はGET /auth/sessionで参照する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		slog.Warn("grant callback without session")
		http.Redirect(w, r, h.redirectURL("grant", "failed"), http.StatusTemporaryRedirect)
		return
	}

	q := r.URL.Query()
	state, err := h.service.CompleteAccessGrant(r.Context(), sessionID, q.Get("state"), q.Get("code"), q.Get("error"))
	if err != nil {
		slog.Error("failed to complete access grant",
			slog.String("session_ref", audit.SessionRef(sessionID)),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	if state != model.GrantGranted {
		http.Redirect(w, r, h.redirectURL("grant", "failed"), http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄し、Cookieをクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromContext(r.Context()); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			slog.Error("failed to logout",
				slog.String("session_ref", audit.SessionRef(sessionID)),
				slog.String("error", err.Error()),
			)
			middleware.WriteInternalServerError(w)
			return
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のサインインとアクセス許可の状態を返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionStatus: status,
		Granted:       status.HasGrant,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectURL はBASE_URLにクエリパラメータを1つ付けたURLを返す。
func (h *AuthHandler) redirectURL(key, value string) string {
	u, err := url.Parse(h.config.BaseURL)
	if err != nil {
		return h.config.BaseURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
