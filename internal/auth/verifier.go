package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	// googleIssuer / googleIssuerHTTPS はGoogleが発行するIDトークンのiss値。
	// どちらの形式も有効として扱う。
	googleIssuer      = "accounts.google.com"
	googleIssuerHTTPS = "https://accounts.google.com"
)

// IDトークン検証の失敗種別。
// すべてErrVerificationにマッチするため、呼び出し側は個別種別を
// 区別する必要がなければerrors.Is(err, ErrVerification)だけで判定できる。
var (
	// ErrVerification はIDトークン検証失敗の基底エラー。
	ErrVerification = errors.New("token verification failed")

	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = fmt.Errorf("token expired: %w", ErrVerification)

	// ErrTokenMalformed はトークンの形式不正を表す。
	ErrTokenMalformed = fmt.Errorf("token malformed: %w", ErrVerification)

	// ErrAudienceMismatch はaudクレームが自サービスのクライアントIDと
	// 一致しないことを表す。audの欠落もこのエラーとして扱う。
	// 他サービス向けに発行されたトークンの流用を防ぐセキュリティ上の
	// 必須チェックであり、フォールバックは行わない。
	ErrAudienceMismatch = fmt.Errorf("audience mismatch: %w", ErrVerification)
)

// FederatedIdentity は検証済みIDトークンから得られる外部identityを表す。
type FederatedIdentity struct {
	Subject    string // IdPが保証する安定したユーザー識別子
	Email      string
	Name       string
	PictureURL string
}

// TokenVerifier はIDトークン検証のインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type TokenVerifier interface {
	// Verify はIDトークンの署名・発行者・audienceを検証し、
	// 検証済みidentityを返す。検証失敗時のエラーは
	// errors.Is(err, ErrVerification)で判定できる。
	Verify(ctx context.Context, rawToken string) (*FederatedIdentity, error)
}

// GoogleVerifierConfig はGoogleTokenVerifierの設定。
type GoogleVerifierConfig struct {
	// ClientID は自サービスのOAuthクライアントID。audクレームと照合する。
	ClientID string

	// Timeout はJWKS取得のHTTPタイムアウト。
	Timeout time.Duration

	// テスト用にオーバーライド可能なURL
	JWKSURL string
}

// GoogleTokenVerifier はGoogle発行のIDトークンをローカルで検証する。
// 署名鍵はGoogleのJWKSエンドポイントから取得し、kid単位でキャッシュする。
// 未知のkidに遭遇した場合のみ再取得する（Googleの鍵ローテーション対応）。
type GoogleTokenVerifier struct {
	config GoogleVerifierConfig
	client *http.Client

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewGoogleTokenVerifier はGoogleTokenVerifierを生成する。
func NewGoogleTokenVerifier(config GoogleVerifierConfig) *GoogleTokenVerifier {
	if config.JWKSURL == "" {
		config.JWKSURL = defaultGoogleJWKSURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &GoogleTokenVerifier{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// googleIDClaims はGoogleのIDトークンのクレーム。
type googleIDClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify はIDトークンの署名・発行者・audienceを検証する。
// JWKS取得のタイムアウトを含むあらゆる失敗は検証エラーであり、
// 成功として扱われることはない。
func (v *GoogleTokenVerifier) Verify(ctx context.Context, rawToken string) (*FederatedIdentity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("empty token: %w", ErrTokenMalformed)
	}

	claims := &googleIDClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(rawToken, claims, v.keyfunc(ctx))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrVerification, err)
		}
	}
	if !token.Valid {
		return nil, ErrVerification
	}

	// 発行者の検証
	if claims.Issuer != googleIssuer && claims.Issuer != googleIssuerHTTPS {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrVerification, claims.Issuer)
	}

	// audienceの検証: 自サービスのクライアントIDと完全一致すること。
	// audの欠落も不一致として扱う。
	if !containsAudience(claims.Audience, v.config.ClientID) {
		return nil, fmt.Errorf("%w: aud %v", ErrAudienceMismatch, claims.Audience)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrVerification)
	}

	return &FederatedIdentity{
		Subject:    claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		PictureURL: claims.Picture,
	}, nil
}

// containsAudience はaudクレームにclientIDが含まれるかを返す。
func containsAudience(audience jwt.ClaimStrings, clientID string) bool {
	if clientID == "" {
		return false
	}
	for _, aud := range audience {
		if aud == clientID {
			return true
		}
	}
	return false
}

// keyfunc はkidヘッダーに対応するRSA公開鍵を返すjwt.Keyfuncを生成する。
// キャッシュに無いkidの場合はJWKSを再取得する。
func (v *GoogleTokenVerifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("missing kid header")
		}

		if key := v.cachedKey(kid); key != nil {
			return key, nil
		}

		if err := v.refreshKeys(ctx); err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
		}

		if key := v.cachedKey(kid); key != nil {
			return key, nil
		}
		return nil, fmt.Errorf("unknown key id: %s", kid)
	}
}

// cachedKey はキャッシュ済みの公開鍵を返す。未キャッシュの場合はnil。
func (v *GoogleTokenVerifier) cachedKey(kid string) *rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys[kid]
}

// jwksResponse はJWKSエンドポイントのレスポンス。
type jwksResponse struct {
	Keys []jwksKey `json:"keys"`
}

// jwksKey はJWKS内の1つの鍵を表す。
type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// refreshKeys はJWKSエンドポイントから署名鍵一式を取得してキャッシュを
// 置き換える。
func (v *GoogleTokenVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("JWKS request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("failed to parse JWKS response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	if len(keys) == 0 {
		return fmt.Errorf("no usable keys in JWKS response")
	}

	v.mu.Lock()
	v.keys = keys
	v.mu.Unlock()

	return nil
}

// parseRSAPublicKey はbase64url形式のモジュラスと指数からRSA公開鍵を復元する。
func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus encoding: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent encoding: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

// compile-time interface check
var _ TokenVerifier = (*GoogleTokenVerifier)(nil)
