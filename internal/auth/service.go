// Package auth はGoogleサインインによる利用者識別と、
// 外部API用アクセス許可（ベアラートークン）のセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/portal/internal/audit"
	"github.com/hitoshi/portal/internal/metrics"
	"github.com/hitoshi/portal/internal/model"
	"github.com/hitoshi/portal/internal/repository"
	"golang.org/x/oauth2"
)

// セッションストアの固定キー
const (
	KeyIdentity     = "js_portal_user"
	KeyGrant        = "js_portal_token"
	KeyPendingGrant = "js_portal_grant_pending"
	KeyGrantError   = "js_portal_grant_error"
)

// GrantProvider はアクセス許可を発行する認可サーバーのインターフェース。
type GrantProvider interface {
	// AuthCodeURL は認可URLを生成する。
	AuthCodeURL(state, verifier string, mode model.GrantMode, loginHint string) string
	// Exchange は認可コードをアクセス許可に交換する。
	Exchange(ctx context.Context, code, verifier string) (*model.AccessGrant, error)
}

// CodeVerifierFunc はPKCEのcode verifierを生成する。
type CodeVerifierFunc func() string

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// PendingGrantTTL は認可リクエスト開始からコールバックまでの許容時間。
	PendingGrantTTL time.Duration
}

// Service はサインインとアクセス許可に関するビジネスロジックを提供する。
type Service struct {
	store       repository.SessionStore
	decoder     *CredentialDecoder
	roles       *RoleMapper
	grants      GrantProvider
	publisher   audit.Publisher
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	newVerifier CodeVerifierFunc
	now         func() time.Time
}

// NewService はServiceを生成する。
// publisherとcollectorはnilでもよい。
func NewService(
	store repository.SessionStore,
	decoder *CredentialDecoder,
	roles *RoleMapper,
	grants GrantProvider,
	publisher audit.Publisher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.PendingGrantTTL <= 0 {
		config.PendingGrantTTL = 10 * time.Minute
	}
	return &Service{
		store:       store,
		decoder:     decoder,
		roles:       roles,
		grants:      grants,
		publisher:   publisher,
		metrics:     collector,
		config:      config,
		newVerifier: oauth2.GenerateVerifier,
		now:         time.Now,
	}
}

// ResolveIdentity はGoogleサインインのcredentialからIdentityを確定し、sessionIDのセッションに保存する。
// デコードに失敗した場合はINVALID_CREDENTIALを返し、セッションには一切書き込まない。
//
// previousSessionIDはサインイン前のセッション。sessionIDと異なる場合はサインイン時の
// セッションID更新として扱い、同じ利用者のアクセス許可だけを新しいセッションへ移して
// 旧セッションを削除する。同じIDの場合、別のメールアドレスなら前の利用者のアクセス許可を破棄する。
func (s *Service) ResolveIdentity(ctx context.Context, previousSessionID, sessionID, credential string) (*model.Identity, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	// 1. credentialをデコード
	claims, err := s.decoder.Decode(ctx, credential)
	if err != nil {
		slog.Warn("credentialのデコードに失敗しました",
			slog.String("session_ref", audit.SessionRef(sessionID)),
			slog.String("error", err.Error()),
		)
		s.emit(ctx, audit.EventLoginRejected, sessionID, "", map[string]string{"reason": err.Error()})
		return nil, model.NewInvalidCredentialError(rejectReason(err))
	}

	// 2. ロールを決定してIdentityを構築
	identity := &model.Identity{
		ID:        claims.Sub,
		Name:      claims.Name,
		Email:     claims.Email,
		Role:      s.roles.Map(claims.Email),
		AvatarURL: claims.Picture,
	}

	// 3. 前のセッションの引き継ぎ
	if previousSessionID != "" && previousSessionID != sessionID {
		if err := s.rotateSession(ctx, previousSessionID, sessionID, identity.Email); err != nil {
			return nil, err
		}
	} else {
		prev, err := s.loadIdentity(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if prev != nil && normalizeEmail(prev.Email) != normalizeEmail(identity.Email) {
			if err := s.store.Delete(ctx, sessionID, KeyGrant, KeyPendingGrant, KeyGrantError); err != nil {
				return nil, fmt.Errorf("failed to clear previous grant: %w", err)
			}
		}
	}

	// 4. 保存
	if err := s.put(ctx, sessionID, KeyIdentity, identity); err != nil {
		return nil, err
	}

	slog.Info("user signed in",
		slog.String("session_ref", audit.SessionRef(sessionID)),
		slog.String("email", identity.Email),
		slog.String("role", string(identity.Role)),
	)
	s.emit(ctx, audit.EventLogin, sessionID, identity.Email, map[string]string{"role": string(identity.Role)})

	return identity, nil
}

// rotateSession は旧セッションのIdentityがemailと一致する場合だけアクセス許可を新しいセッションへ移し、
// 旧セッションを削除する。Identityのない旧セッション（発行元の不明なID）からは何も引き継がない。
func (s *Service) rotateSession(ctx context.Context, previousSessionID, sessionID, email string) error {
	prev, err := s.loadIdentity(ctx, previousSessionID)
	if err != nil {
		return err
	}
	if prev != nil && normalizeEmail(prev.Email) == normalizeEmail(email) {
		raw, err := s.store.Get(ctx, previousSessionID, KeyGrant)
		if err != nil {
			return fmt.Errorf("failed to read previous grant: %w", err)
		}
		if raw != nil {
			if err := s.store.Set(ctx, sessionID, KeyGrant, raw); err != nil {
				return fmt.Errorf("failed to move grant: %w", err)
			}
		}
	}
	if err := s.store.DeleteAll(ctx, previousSessionID); err != nil {
		return fmt.Errorf("failed to delete previous session: %w", err)
	}
	return nil
}

// RequestAccessGrant は認可リクエストを開始し、遷移先の認可URLを返す。
// stateとPKCE verifierをセッションに保存し、アクセス許可の状態をAUTHORIZINGに進める。
func (s *Service) RequestAccessGrant(ctx context.Context, sessionID string, mode model.GrantMode) (string, error) {
	identity, err := s.loadIdentity(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if identity == nil {
		return "", model.NewNotAuthenticatedError()
	}

	state, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	pending := &model.PendingGrant{
		State:     state,
		Verifier:  s.newVerifier(),
		Mode:      mode,
		StartedAt: s.now().UTC(),
	}
	if err := s.put(ctx, sessionID, KeyPendingGrant, pending); err != nil {
		return "", err
	}

	s.emit(ctx, audit.EventGrantRequested, sessionID, identity.Email, map[string]string{"mode": string(mode)})

	return s.grants.AuthCodeURL(state, pending.Verifier, mode, identity.Email), nil
}

// CompleteAccessGrant は認可コールバックを処理し、結果のアクセス許可状態を返す。
// 成功時はトークンを保存する。失敗時は既存のトークンに触れず、
// 失敗内容をセッションに記録してStatusから参照できるようにする。
// 返すエラーはセッションストアの障害のみ。
func (s *Service) CompleteAccessGrant(ctx context.Context, sessionID, state, code, providerErr string) (model.GrantState, error) {
	pending, err := s.loadPending(ctx, sessionID)
	if err != nil {
		return "", err
	}

	// 1. 認可リクエストの整合性を確認
	var reason string
	switch {
	case pending == nil:
		reason = "no pending grant request"
	case state == "" || state != pending.State:
		reason = "state mismatch"
	case s.now().Sub(pending.StartedAt) > s.config.PendingGrantTTL:
		reason = "grant request expired"
	case providerErr != "":
		reason = providerErr
	case code == "":
		reason = "missing authorization code"
	}

	var mode model.GrantMode
	if pending != nil {
		mode = pending.Mode
	}

	// 2. 認可コードをトークンに交換
	var grant *model.AccessGrant
	if reason == "" {
		grant, err = s.grants.Exchange(ctx, code, pending.Verifier)
		if err != nil {
			reason = "token exchange failed"
			slog.Warn("トークン交換に失敗しました",
				slog.String("session_ref", audit.SessionRef(sessionID)),
				slog.String("error", err.Error()),
			)
		}
	}

	// 進行中の認可リクエストは成否にかかわらず破棄
	if err := s.store.Delete(ctx, sessionID, KeyPendingGrant); err != nil {
		return "", fmt.Errorf("failed to clear pending grant: %w", err)
	}

	if reason != "" {
		return s.failGrant(ctx, sessionID, mode, reason)
	}

	// 3. 保存
	if err := s.put(ctx, sessionID, KeyGrant, grant); err != nil {
		return "", err
	}
	if err := s.store.Delete(ctx, sessionID, KeyGrantError); err != nil {
		return "", fmt.Errorf("failed to clear grant error: %w", err)
	}

	slog.Info("access grant obtained",
		slog.String("session_ref", audit.SessionRef(sessionID)),
		slog.String("mode", string(mode)),
		slog.Int("scopes", len(grant.Scopes)),
	)
	s.emit(ctx, audit.EventGrantSucceeded, sessionID, "", map[string]string{"mode": string(mode)})

	return model.GrantGranted, nil
}

// failGrant は失敗を記録し、失敗前のアクセス許可状態を返す。
func (s *Service) failGrant(ctx context.Context, sessionID string, mode model.GrantMode, reason string) (model.GrantState, error) {
	failure := &model.GrantFailure{
		Code:     model.ErrCodeGrantFailed,
		Reason:   reason,
		Mode:     mode,
		FailedAt: s.now().UTC(),
	}
	if err := s.put(ctx, sessionID, KeyGrantError, failure); err != nil {
		return "", err
	}

	slog.Warn("アクセス許可の取得に失敗しました",
		slog.String("session_ref", audit.SessionRef(sessionID)),
		slog.String("mode", string(mode)),
		slog.String("reason", reason),
	)
	s.emit(ctx, audit.EventGrantFailed, sessionID, "", map[string]string{"mode": string(mode), "reason": reason})

	grant, err := s.loadGrant(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if grant != nil {
		return model.GrantGranted, nil
	}
	return model.GrantUngranted, nil
}

// Logout はセッションのすべてのエントリを同期的に削除する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.store.DeleteAll(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_ref", audit.SessionRef(sessionID)))
	s.emit(ctx, audit.EventLogout, sessionID, "", nil)
	return nil
}

// RestoreSession はIdentityとAccessGrantをそれぞれ独立に読み出す。
// 存在しないエントリはnilを返す。両者の整合性は確認しない。
func (s *Service) RestoreSession(ctx context.Context, sessionID string) (*model.Identity, *model.AccessGrant, error) {
	if sessionID == "" {
		return nil, nil, nil
	}

	identity, err := s.loadIdentity(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	grant, err := s.loadGrant(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return identity, grant, nil
}

// Status はサインインとアクセス許可の2軸の状態を返す。
func (s *Service) Status(ctx context.Context, sessionID string) (*model.SessionStatus, error) {
	status := &model.SessionStatus{
		IdentityState: model.IdentityAnonymous,
		GrantState:    model.GrantUngranted,
	}
	if sessionID == "" {
		return status, nil
	}

	identity, grant, err := s.RestoreSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pending, err := s.loadPending(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	failure := &model.GrantFailure{}
	found, err := s.get(ctx, sessionID, KeyGrantError, failure)
	if err != nil {
		return nil, err
	}

	if identity != nil {
		status.IdentityState = model.IdentityAuthenticated
		status.Identity = identity
	}
	switch {
	case pending != nil && s.now().Sub(pending.StartedAt) <= s.config.PendingGrantTTL:
		status.GrantState = model.GrantAuthorizing
	case grant != nil:
		status.GrantState = model.GrantGranted
	}
	status.HasGrant = grant != nil
	if found {
		status.GrantError = failure
	}
	return status, nil
}

func (s *Service) loadIdentity(ctx context.Context, sessionID string) (*model.Identity, error) {
	var identity model.Identity
	found, err := s.get(ctx, sessionID, KeyIdentity, &identity)
	if err != nil || !found {
		return nil, err
	}
	return &identity, nil
}

func (s *Service) loadGrant(ctx context.Context, sessionID string) (*model.AccessGrant, error) {
	var grant model.AccessGrant
	found, err := s.get(ctx, sessionID, KeyGrant, &grant)
	if err != nil || !found {
		return nil, err
	}
	if grant.BearerToken == "" {
		return nil, nil
	}
	return &grant, nil
}

func (s *Service) loadPending(ctx context.Context, sessionID string) (*model.PendingGrant, error) {
	var pending model.PendingGrant
	found, err := s.get(ctx, sessionID, KeyPendingGrant, &pending)
	if err != nil || !found {
		return nil, err
	}
	return &pending, nil
}

// get はエントリを読み出してvにデコードする。
// 未保存または壊れたエントリは見つからなかったものとして扱う。
func (s *Service) get(ctx context.Context, sessionID, key string, v any) (bool, error) {
	raw, err := s.store.Get(ctx, sessionID, key)
	if err != nil {
		return false, fmt.Errorf("failed to read session entry %s: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Warn("セッションエントリが破損しています",
			slog.String("session_ref", audit.SessionRef(sessionID)),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return true, nil
}

func (s *Service) put(ctx context.Context, sessionID, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode session entry %s: %w", key, err)
	}
	if err := s.store.Set(ctx, sessionID, key, raw); err != nil {
		return fmt.Errorf("failed to write session entry %s: %w", key, err)
	}
	return nil
}

// emit は監査イベントを送信し、メトリクスを記録する。
func (s *Service) emit(ctx context.Context, eventType, sessionID, email string, attrs map[string]string) {
	if s.metrics != nil {
		s.metrics.RecordAuthEvent(eventType)
	}
	if s.publisher == nil {
		return
	}
	e := audit.NewEvent(eventType, sessionID)
	e.Email = email
	e.Attrs = attrs
	s.publisher.Publish(ctx, e)
}

// rejectReason はcredentialのデコード失敗を利用者向けの短い理由に変換する。
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedCredential):
		return "形式が不正です"
	case errors.Is(err, ErrUndecodablePayload), errors.Is(err, ErrInvalidPayload):
		return "内容を読み取れません"
	case errors.Is(err, ErrMissingEmail):
		return "メールアドレスが含まれていません"
	case errors.Is(err, ErrDomainNotAllowed):
		return "このドメインのアカウントは利用できません"
	default:
		return "検証に失敗しました"
	}
}

// GenerateSessionID は暗号的に安全なセッションIDを生成する。
func GenerateSessionID() (string, error) {
	return generateToken()
}

// generateToken は32バイトの乱数を16進文字列で返す。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
