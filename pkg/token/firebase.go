package token

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"easy-canvas-go/pkg/log"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCertsURL 是 Firebase ID token 签名证书的公开地址。
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const defaultCertsTTL = time.Hour

// FirebaseClaims 是 Firebase ID token 中我们关心的声明。
type FirebaseClaims struct {
	AuthTime int64  `json:"auth_time"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// FirebaseVerifier 按 Firebase 规则校验 RS256 ID token。
// 公钥按 kid 缓存，有效期取自证书响应的 Cache-Control max-age。
type FirebaseVerifier struct {
	projectID  string
	certsURL   string
	httpClient *http.Client
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// NewFirebaseVerifier 创建 Firebase token 校验器。certsURL 为空时使用 Google 的地址。
func NewFirebaseVerifier(projectID, certsURL string, httpClient *http.Client) *FirebaseVerifier {
	if certsURL == "" {
		certsURL = DefaultCertsURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &FirebaseVerifier{
		projectID:  projectID,
		certsURL:   certsURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Verify 校验签名、aud、iss、exp、iat 与 sub，成功时返回 Firebase uid。
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	claims := &FirebaseClaims{}
	_, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		log.Debugf("firebase token rejected: %v", err)
		return "", ErrInvalidToken
	}
	if claims.Subject == "" || len(claims.Subject) > 128 {
		return "", ErrInvalidToken
	}
	if claims.AuthTime > v.now().Unix() {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := v.now().Before(v.expiresAt)
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("no public key for kid %q", kid)
}

func (v *FirebaseVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch firebase certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch firebase certs: status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return fmt.Errorf("decode firebase certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pemCert := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemCert))
		if err != nil {
			log.Warnf("跳过无法解析的 Firebase 证书 kid=%s: %v", kid, err)
			continue
		}
		keys[kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.expiresAt = v.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()
	return nil
}

// maxAge 解析 Cache-Control 中的 max-age，缺省为一小时。
func maxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "max-age=") {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimPrefix(part, "max-age="))
		if err != nil || secs <= 0 {
			break
		}
		return time.Duration(secs) * time.Second
	}
	return defaultCertsTTL
}
