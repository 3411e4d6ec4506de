package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/portal/internal/model"
	"golang.org/x/oauth2"
)

const (
	defaultGoogleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
)

// GrantScopes はダッシュボードが必要とする読み取り専用スコープ。
var GrantScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/tasks.readonly",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string

	// HTTPClient はトークン交換に使う。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// GoogleGrantProvider はGoogleのOAuth 2.0認可コードフロー（PKCE付き）で
// アクセストークンを取得する。
type GoogleGrantProvider struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewGoogleGrantProvider はGoogleGrantProviderを生成する。
func NewGoogleGrantProvider(config GoogleOAuthConfig) *GoogleGrantProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	return &GoogleGrantProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       GrantScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: config.HTTPClient,
	}
}

// AuthCodeURL は認可URLを生成する。
// silentはprompt=none、interactiveはprompt=consentを付与する。
// loginHintが空でなければアカウント選択を省略させる。
func (p *GoogleGrantProvider) AuthCodeURL(state, verifier string, mode model.GrantMode, loginHint string) string {
	prompt := "none"
	if mode == model.GrantModeInteractive {
		prompt = "consent"
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", prompt),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.S256ChallengeOption(verifier),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

// Exchange は認可コードとPKCE verifierをアクセストークンに交換する。
func (p *GoogleGrantProvider) Exchange(ctx context.Context, code, verifier string) (*model.AccessGrant, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &model.AccessGrant{
		BearerToken: token.AccessToken,
		TokenType:   token.Type(),
		Scopes:      grantedScopes(token),
		ObtainedAt:  time.Now().UTC(),
		Expiry:      token.Expiry,
	}, nil
}

// grantedScopes はトークン応答のscopeを返す。応答に含まれない場合は要求スコープ。
func grantedScopes(token *oauth2.Token) []string {
	if s, ok := token.Extra("scope").(string); ok && s != "" {
		return strings.Fields(s)
	}
	out := make([]string, len(GrantScopes))
	copy(out, GrantScopes)
	return out
}

// compile-time interface check
var _ GrantProvider = (*GoogleGrantProvider)(nil)
