package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/publicsuffix"
)

const (
	googleIssuer  = "https://accounts.google.com"
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// credentialの分解・検証で返すエラー
var (
	ErrMalformedCredential = errors.New("credential is not a three-segment token")
	ErrUndecodablePayload  = errors.New("credential payload is not base64url")
	ErrInvalidPayload      = errors.New("credential payload is not a JSON object")
	ErrMissingEmail        = errors.New("credential payload has no email")
	ErrDomainNotAllowed    = errors.New("email domain is not allowed")
)

// CredentialClaims はGoogleサインインのcredential（IDトークン）から取り出す項目。
type CredentialClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// IDTokenVerifier はcredentialの署名・発行者・有効期限を検証する。
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) error
}

// oidcVerifier はgo-oidcのIDTokenVerifierをIDTokenVerifierに適合させる。
type oidcVerifier struct {
	v *oidc.IDTokenVerifier
}

// Verify はgo-oidcで検証し、結果のトークンは捨てる。
func (o *oidcVerifier) Verify(ctx context.Context, rawIDToken string) error {
	if _, err := o.v.Verify(ctx, rawIDToken); err != nil {
		return fmt.Errorf("failed to verify id token: %w", err)
	}
	return nil
}

// NewGoogleIDTokenVerifier はGoogleのJWKSで署名を検証するVerifierを生成する。
// 公開鍵は初回検証時に取得し、以降はキャッシュされる。
func NewGoogleIDTokenVerifier(clientID string, httpClient *http.Client) IDTokenVerifier {
	ctx := oidc.ClientContext(context.Background(), httpClient)
	keySet := oidc.NewRemoteKeySet(ctx, googleJWKSURL)
	return NewIDTokenVerifier(googleIssuer, keySet, clientID)
}

// NewIDTokenVerifier は任意のKeySetで検証するVerifierを生成する。
func NewIDTokenVerifier(issuer string, keySet oidc.KeySet, clientID string) IDTokenVerifier {
	return &oidcVerifier{
		v: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// CredentialDecoderConfig はCredentialDecoderの設定。
type CredentialDecoderConfig struct {
	// Verifier が nil の場合は署名を検証しない（ペイロードのデコードのみ）。
	Verifier IDTokenVerifier
	// AllowedDomain が空でない場合、emailの登録可能ドメインが一致する必要がある。
	AllowedDomain string
}

// CredentialDecoder はcredential文字列からCredentialClaimsを取り出す。
type CredentialDecoder struct {
	parser        *jwt.Parser
	verifier      IDTokenVerifier
	allowedDomain string
}

// NewCredentialDecoder はCredentialDecoderを生成する。
func NewCredentialDecoder(config CredentialDecoderConfig) *CredentialDecoder {
	return &CredentialDecoder{
		parser:        jwt.NewParser(jwt.WithPaddingAllowed()),
		verifier:      config.Verifier,
		allowedDomain: strings.ToLower(strings.TrimSpace(config.AllowedDomain)),
	}
}

// Decode はheader.payload.signature形式のcredentialの中央セグメントを
// base64urlデコードしてJSONとして読み取る。
// Verifierが設定されていない場合、署名は検証しない。
func (d *CredentialDecoder) Decode(ctx context.Context, credential string) (*CredentialClaims, error) {
	// 1. 空でない3セグメントであることを確認
	parts := strings.Split(strings.TrimSpace(credential), ".")
	if len(parts) != 3 || slices.Contains(parts, "") {
		return nil, ErrMalformedCredential
	}

	// 2. ペイロードをデコード
	payload, err := d.parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodablePayload, err)
	}

	// 3. JSONオブジェクトとして読み取り
	var claims CredentialClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	claims.Email = strings.TrimSpace(claims.Email)
	if claims.Email == "" {
		return nil, ErrMissingEmail
	}

	// 4. ドメイン制限
	if d.allowedDomain != "" {
		if err := checkEmailDomain(claims.Email, d.allowedDomain); err != nil {
			return nil, err
		}
	}

	// 5. 署名検証（設定時のみ）
	if d.verifier != nil {
		if err := d.verifier.Verify(ctx, credential); err != nil {
			return nil, err
		}
	}

	return &claims, nil
}

// checkEmailDomain はemailの登録可能ドメイン（eTLD+1）がallowedと一致するかを確認する。
// サブドメインのアドレスは親ドメインとして扱う。
func checkEmailDomain(email, allowed string) error {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return fmt.Errorf("%w: %s", ErrDomainNotAllowed, email)
	}
	host := strings.ToLower(email[at+1:])

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDomainNotAllowed, err)
	}
	if registrable != allowed {
		return fmt.Errorf("%w: %s", ErrDomainNotAllowed, registrable)
	}
	return nil
}
