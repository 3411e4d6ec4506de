package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/portal/internal/audit"
	"github.com/hitoshi/portal/internal/model"
	"github.com/hitoshi/portal/internal/repository"
)

// --- モック定義 ---

type mockGrantProvider struct {
	authCodeURLFn func(state, verifier string, mode model.GrantMode, loginHint string) string
	exchangeFn    func(ctx context.Context, code, verifier string) (*model.AccessGrant, error)
	exchanged     int
}

func (m *mockGrantProvider) AuthCodeURL(state, verifier string, mode model.GrantMode, loginHint string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state, verifier, mode, loginHint)
	}
	v := url.Values{"state": {state}, "mode": {string(mode)}, "login_hint": {loginHint}}
	return "https://idp.example.com/auth?" + v.Encode()
}

func (m *mockGrantProvider) Exchange(ctx context.Context, code, verifier string) (*model.AccessGrant, error) {
	m.exchanged++
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, verifier)
	}
	return &model.AccessGrant{BearerToken: "token-" + code, Scopes: GrantScopes, ObtainedAt: time.Now()}, nil
}

type mockPublisher struct {
	events []audit.Event
}

func (m *mockPublisher) Publish(_ context.Context, e audit.Event) {
	m.events = append(m.events, e)
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) types() []string {
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// failingStore は常にエラーを返すSessionStore。
type failingStore struct {
	repository.SessionStore
	err error
}

func (f *failingStore) Get(context.Context, string, string) ([]byte, error) { return nil, f.err }
func (f *failingStore) Set(context.Context, string, string, []byte) error   { return f.err }

// --- compile-time interface checks ---
var _ GrantProvider = (*mockGrantProvider)(nil)
var _ audit.Publisher = (*mockPublisher)(nil)

type testEnv struct {
	svc       *Service
	store     *repository.MemorySessionStore
	grants    *mockGrantProvider
	publisher *mockPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemorySessionStore(repository.StoreConfig{TTL: time.Hour})
	grants := &mockGrantProvider{}
	pub := &mockPublisher{}
	svc := NewService(
		store,
		NewCredentialDecoder(CredentialDecoderConfig{}),
		NewRoleMapper(nil),
		grants,
		pub,
		nil,
		ServiceConfig{PendingGrantTTL: 10 * time.Minute},
	)
	svc.newVerifier = func() string { return "fixed-verifier" }
	return &testEnv{svc: svc, store: store, grants: grants, publisher: pub}
}

// signIn はemailでサインイン済みの状態を作る。
func (e *testEnv) signIn(t *testing.T, sessionID, email string) *model.Identity {
	t.Helper()
	identity, err := e.svc.ResolveIdentity(context.Background(), sessionID, sessionID,
		makeCredential(`{"sub":"sub-`+email+`","email":"`+email+`","name":"Test","picture":"https://example.com/p.png"}`))
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	return identity
}

// grant はアクセス許可取得済みの状態を作る。
func (e *testEnv) grant(t *testing.T, sessionID string) {
	t.Helper()
	authURL, err := e.svc.RequestAccessGrant(context.Background(), sessionID, model.GrantModeInteractive)
	if err != nil {
		t.Fatalf("RequestAccessGrant: %v", err)
	}
	state := stateFromURL(t, authURL)
	got, err := e.svc.CompleteAccessGrant(context.Background(), sessionID, state, "code-1", "")
	if err != nil {
		t.Fatalf("CompleteAccessGrant: %v", err)
	}
	if got != model.GrantGranted {
		t.Fatalf("grant state = %q, want %q", got, model.GrantGranted)
	}
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid auth URL: %v", err)
	}
	return u.Query().Get("state")
}

// --- テスト ---

func TestResolveIdentity_AllowlistedEmailIsITAdmin(t *testing.T) {
	env := newTestEnv(t)

	identity := env.signIn(t, "s1", "kodev.ali@jsbl.com")

	if identity.Role != model.RoleITAdmin {
		t.Errorf("Role = %q, want %q", identity.Role, model.RoleITAdmin)
	}
	if identity.ID != "sub-kodev.ali@jsbl.com" {
		t.Errorf("ID = %q", identity.ID)
	}
	if identity.AvatarURL != "https://example.com/p.png" {
		t.Errorf("AvatarURL = %q", identity.AvatarURL)
	}

	raw, _ := env.store.Get(context.Background(), "s1", KeyIdentity)
	var stored model.Identity
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("stored identity is not JSON: %v", err)
	}
	if stored != *identity {
		t.Errorf("stored = %+v, want %+v", stored, *identity)
	}
}

func TestResolveIdentity_MalformedCredentialLeavesStorageUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	before := env.signIn(t, "s1", "teller@jsbl.com")

	_, err := env.svc.ResolveIdentity(ctx, "s1", "s1", "garbage")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredential {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredential)
	}

	identity, _, err := env.svc.RestoreSession(ctx, "s1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if identity == nil || *identity != *before {
		t.Errorf("identity = %+v, want unchanged %+v", identity, before)
	}

	last := env.publisher.events[len(env.publisher.events)-1]
	if last.Type != audit.EventLoginRejected {
		t.Errorf("last event = %q, want %q", last.Type, audit.EventLoginRejected)
	}
}

func TestResolveIdentity_NoEmailIsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ResolveIdentity(context.Background(), "s1", "s1", makeCredential(`{"sub":"1"}`))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredential {
		t.Fatalf("err = %v, want INVALID_CREDENTIAL", err)
	}
	if raw, _ := env.store.Get(context.Background(), "s1", KeyIdentity); raw != nil {
		t.Errorf("identity should not be stored, got %s", raw)
	}
}

func TestResolveIdentity_SameUserKeepsGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")
	env.grant(t, "s1")

	env.signIn(t, "s1", "Teller@jsbl.com")

	_, grant, err := env.svc.RestoreSession(ctx, "s1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if grant == nil {
		t.Error("grant should survive re-login by the same user")
	}
}

func TestResolveIdentity_DifferentUserClearsGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")
	env.grant(t, "s1")

	env.signIn(t, "s1", "branch.manager@jsbl.com")

	identity, grant, err := env.svc.RestoreSession(ctx, "s1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if identity == nil || identity.Role != model.RoleManager {
		t.Errorf("identity = %+v, want manager", identity)
	}
	if grant != nil {
		t.Errorf("grant = %+v, want nil after user switch", grant)
	}
}

func TestResolveIdentity_RotationMovesSameUserGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "old", "teller@jsbl.com")
	env.grant(t, "old")

	_, err := env.svc.ResolveIdentity(ctx, "old", "new", makeCredential(`{"sub":"1","email":"teller@jsbl.com"}`))
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}

	identity, grant, err := env.svc.RestoreSession(ctx, "new")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if identity == nil || identity.Email != "teller@jsbl.com" {
		t.Errorf("identity = %+v", identity)
	}
	if grant == nil || grant.BearerToken != "token-code-1" {
		t.Errorf("grant = %+v, want moved grant", grant)
	}

	oldIdentity, oldGrant, _ := env.svc.RestoreSession(ctx, "old")
	if oldIdentity != nil || oldGrant != nil {
		t.Errorf("previous session should be deleted, got %+v %+v", oldIdentity, oldGrant)
	}
}

func TestResolveIdentity_RotationFromUnknownSessionCarriesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// サインイン前のセッションにアクセス許可だけが置かれている
	env.store.Set(ctx, "planted", KeyGrant, []byte(`{"bearerToken":"planted-token"}`))

	_, err := env.svc.ResolveIdentity(ctx, "planted", "new", makeCredential(`{"sub":"1","email":"teller@jsbl.com"}`))
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}

	identity, grant, _ := env.svc.RestoreSession(ctx, "new")
	if identity == nil {
		t.Fatal("identity should be stored in the new session")
	}
	if grant != nil {
		t.Errorf("grant = %+v, want nil", grant)
	}
	if raw, _ := env.store.Get(ctx, "planted", KeyGrant); raw != nil {
		t.Errorf("previous session should be deleted, got %s", raw)
	}
}

func TestResolveIdentity_RotationDifferentUserDropsGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "old", "teller@jsbl.com")
	env.grant(t, "old")

	_, err := env.svc.ResolveIdentity(ctx, "old", "new", makeCredential(`{"sub":"2","email":"branch.manager@jsbl.com"}`))
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}

	_, grant, _ := env.svc.RestoreSession(ctx, "new")
	if grant != nil {
		t.Errorf("grant = %+v, want nil after user switch", grant)
	}
}

func TestResolveIdentity_RotationRejectedCredentialKeepsPreviousSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "old", "teller@jsbl.com")

	if _, err := env.svc.ResolveIdentity(ctx, "old", "new", "garbage"); err == nil {
		t.Fatal("expected error")
	}

	if identity, _, _ := env.svc.RestoreSession(ctx, "old"); identity == nil {
		t.Error("previous session should be untouched")
	}
	if identity, _, _ := env.svc.RestoreSession(ctx, "new"); identity != nil {
		t.Errorf("new session should be empty, got %+v", identity)
	}
}

func TestResolveIdentity_StoreErrorIsReturned(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	svc := NewService(store, NewCredentialDecoder(CredentialDecoderConfig{}), NewRoleMapper(nil),
		&mockGrantProvider{}, nil, nil, ServiceConfig{})

	_, err := svc.ResolveIdentity(context.Background(), "", "s1", makeCredential(`{"email":"a@jsbl.com"}`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should not be an APIError: %v", err)
	}
}

func TestRequestAccessGrant_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.RequestAccessGrant(context.Background(), "s1", model.GrantModeSilent)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotAuthenticated {
		t.Fatalf("err = %v, want NOT_AUTHENTICATED", err)
	}
}

func TestRequestAccessGrant_StoresPendingAndMovesToAuthorizing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")

	var gotVerifier, gotHint string
	var gotMode model.GrantMode
	env.grants.authCodeURLFn = func(state, verifier string, mode model.GrantMode, loginHint string) string {
		gotVerifier, gotMode, gotHint = verifier, mode, loginHint
		return "https://idp.example.com/auth?state=" + state
	}

	authURL, err := env.svc.RequestAccessGrant(ctx, "s1", model.GrantModeSilent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotVerifier != "fixed-verifier" {
		t.Errorf("verifier = %q", gotVerifier)
	}
	if gotMode != model.GrantModeSilent {
		t.Errorf("mode = %q, want silent", gotMode)
	}
	if gotHint != "teller@jsbl.com" {
		t.Errorf("login hint = %q", gotHint)
	}

	state := stateFromURL(t, authURL)
	if len(state) != 64 {
		t.Errorf("len(state) = %d, want 64", len(state))
	}

	status, err := env.svc.Status(ctx, "s1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.GrantState != model.GrantAuthorizing {
		t.Errorf("GrantState = %q, want %q", status.GrantState, model.GrantAuthorizing)
	}
}

func TestCompleteAccessGrant_SuccessStoresGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")

	var gotVerifier string
	env.grants.exchangeFn = func(ctx context.Context, code, verifier string) (*model.AccessGrant, error) {
		gotVerifier = verifier
		return &model.AccessGrant{BearerToken: "ya29.abc", Scopes: GrantScopes, ObtainedAt: time.Now()}, nil
	}

	authURL, _ := env.svc.RequestAccessGrant(ctx, "s1", model.GrantModeInteractive)
	state, err := env.svc.CompleteAccessGrant(ctx, "s1", stateFromURL(t, authURL), "the-code", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != model.GrantGranted {
		t.Errorf("state = %q, want %q", state, model.GrantGranted)
	}
	if gotVerifier != "fixed-verifier" {
		t.Errorf("verifier = %q, want fixed-verifier", gotVerifier)
	}

	_, grant, _ := env.svc.RestoreSession(ctx, "s1")
	if grant == nil || grant.BearerToken != "ya29.abc" {
		t.Errorf("grant = %+v", grant)
	}
	if raw, _ := env.store.Get(ctx, "s1", KeyPendingGrant); raw != nil {
		t.Error("pending grant should be cleared")
	}

	status, _ := env.svc.Status(ctx, "s1")
	if status.GrantState != model.GrantGranted || status.GrantError != nil {
		t.Errorf("status = %+v", status)
	}
}

func TestCompleteAccessGrant_Failures(t *testing.T) {
	tests := []struct {
		name        string
		state       func(real string) string
		code        string
		providerErr string
		exchangeErr error
		wantReason  string
	}{
		{"provider error", func(s string) string { return s }, "", "interaction_required", nil, "interaction_required"},
		{"access denied", func(s string) string { return s }, "", "access_denied", nil, "access_denied"},
		{"state mismatch", func(string) string { return "forged" }, "code", "", nil, "state mismatch"},
		{"missing code", func(s string) string { return s }, "", "", nil, "missing authorization code"},
		{"exchange error", func(s string) string { return s }, "code", "", errors.New("invalid_grant"), "token exchange failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.signIn(t, "s1", "teller@jsbl.com")
			if tt.exchangeErr != nil {
				env.grants.exchangeFn = func(context.Context, string, string) (*model.AccessGrant, error) {
					return nil, tt.exchangeErr
				}
			}

			authURL, _ := env.svc.RequestAccessGrant(ctx, "s1", model.GrantModeSilent)
			got, err := env.svc.CompleteAccessGrant(ctx, "s1", tt.state(stateFromURL(t, authURL)), tt.code, tt.providerErr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != model.GrantUngranted {
				t.Errorf("state = %q, want %q", got, model.GrantUngranted)
			}

			status, _ := env.svc.Status(ctx, "s1")
			if status.GrantState != model.GrantUngranted {
				t.Errorf("GrantState = %q, want %q", status.GrantState, model.GrantUngranted)
			}
			if status.GrantError == nil {
				t.Fatal("GrantError should be set")
			}
			if status.GrantError.Code != model.ErrCodeGrantFailed {
				t.Errorf("Code = %q", status.GrantError.Code)
			}
			if status.GrantError.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", status.GrantError.Reason, tt.wantReason)
			}
			if status.GrantError.Mode != model.GrantModeSilent {
				t.Errorf("Mode = %q, want silent", status.GrantError.Mode)
			}
		})
	}
}

func TestCompleteAccessGrant_FailureKeepsExistingGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")
	env.grant(t, "s1")

	authURL, _ := env.svc.RequestAccessGrant(ctx, "s1", model.GrantModeSilent)
	got, err := env.svc.CompleteAccessGrant(ctx, "s1", stateFromURL(t, authURL), "", "consent_required")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.GrantGranted {
		t.Errorf("state = %q, want %q", got, model.GrantGranted)
	}

	_, grant, _ := env.svc.RestoreSession(ctx, "s1")
	if grant == nil || grant.BearerToken != "token-code-1" {
		t.Errorf("grant = %+v, want previous token", grant)
	}
}

func TestCompleteAccessGrant_ExpiredRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")

	start := time.Now()
	env.svc.now = func() time.Time { return start }
	authURL, _ := env.svc.RequestAccessGrant(ctx, "s1", model.GrantModeSilent)

	env.svc.now = func() time.Time { return start.Add(11 * time.Minute) }
	if _, err := env.svc.CompleteAccessGrant(ctx, "s1", stateFromURL(t, authURL), "code", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.grants.exchanged != 0 {
		t.Errorf("exchange called %d times, want 0", env.grants.exchanged)
	}

	status, _ := env.svc.Status(ctx, "s1")
	if status.GrantError == nil || status.GrantError.Reason != "grant request expired" {
		t.Errorf("GrantError = %+v", status.GrantError)
	}
}

func TestCompleteAccessGrant_WithoutPendingRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")

	got, err := env.svc.CompleteAccessGrant(ctx, "s1", "any", "code", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != model.GrantUngranted {
		t.Errorf("state = %q, want %q", got, model.GrantUngranted)
	}
	if env.grants.exchanged != 0 {
		t.Error("exchange should not be called without a pending request")
	}
}

func TestCompleteAccessGrant_RetryAfterFailureClearsError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")

	authURL, _ := env.svc.RequestAccessGrant(ctx, "s1", model.GrantModeSilent)
	_, _ = env.svc.CompleteAccessGrant(ctx, "s1", stateFromURL(t, authURL), "", "interaction_required")

	env.grant(t, "s1")

	status, _ := env.svc.Status(ctx, "s1")
	if status.GrantError != nil {
		t.Errorf("GrantError = %+v, want nil after successful retry", status.GrantError)
	}
}

func TestLogout_ThenRestoreReturnsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "kodev.ali@jsbl.com")
	env.grant(t, "s1")

	if err := env.svc.Logout(ctx, "s1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	identity, grant, err := env.svc.RestoreSession(ctx, "s1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if identity != nil || grant != nil {
		t.Errorf("RestoreSession = (%+v, %+v), want (nil, nil)", identity, grant)
	}

	status, _ := env.svc.Status(ctx, "s1")
	if status.IdentityState != model.IdentityAnonymous || status.GrantState != model.GrantUngranted {
		t.Errorf("status = %+v", status)
	}
}

func TestLogout_EmptySessionID(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestRestoreSession_GrantWithoutIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	raw, _ := json.Marshal(model.AccessGrant{BearerToken: "orphan"})
	_ = env.store.Set(ctx, "s1", KeyGrant, raw)

	identity, grant, err := env.svc.RestoreSession(ctx, "s1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if identity != nil {
		t.Errorf("identity = %+v, want nil", identity)
	}
	if grant == nil || grant.BearerToken != "orphan" {
		t.Errorf("grant = %+v, want orphan token", grant)
	}
}

func TestRestoreSession_CorruptEntryIsTreatedAsMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_ = env.store.Set(ctx, "s1", KeyIdentity, []byte("{not json"))

	identity, _, err := env.svc.RestoreSession(ctx, "s1")
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if identity != nil {
		t.Errorf("identity = %+v, want nil", identity)
	}
}

func TestStatus_ReauthorizationKeepsExistingGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signIn(t, "s1", "teller@jsbl.com")
	env.grant(t, "s1")

	if _, err := env.svc.RequestAccessGrant(ctx, "s1", model.GrantModeInteractive); err != nil {
		t.Fatalf("RequestAccessGrant: %v", err)
	}

	status, err := env.svc.Status(ctx, "s1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.GrantState != model.GrantAuthorizing {
		t.Errorf("GrantState = %s, want AUTHORIZING", status.GrantState)
	}
	if !status.HasGrant {
		t.Error("HasGrant should stay true while re-authorizing")
	}
}

func TestStatus_EmptySessionIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	status, err := env.svc.Status(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.IdentityState != model.IdentityAnonymous || status.Identity != nil {
		t.Errorf("status = %+v", status)
	}
}

func TestService_AuditEventSequence(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "s1", "teller@jsbl.com")
	env.grant(t, "s1")
	_ = env.svc.Logout(context.Background(), "s1")

	got := strings.Join(env.publisher.types(), ",")
	want := strings.Join([]string{
		audit.EventLogin,
		audit.EventGrantRequested,
		audit.EventGrantSucceeded,
		audit.EventLogout,
	}, ",")
	if got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	for _, e := range env.publisher.events {
		if e.SessionRef != audit.SessionRef("s1") {
			t.Errorf("SessionRef = %q, want hashed reference", e.SessionRef)
		}
	}
}

func TestGenerateSessionID_IsRandomHex(t *testing.T) {
	a, err := GenerateSessionID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateSessionID()
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
	if a == b {
		t.Error("session IDs should differ")
	}
}
