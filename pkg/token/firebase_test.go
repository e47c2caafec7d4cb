package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testProject = "easy-canvas-test"

type certServer struct {
	*httptest.Server
	key  *rsa.PrivateKey
	hits int32
	kid  string
}

func newCertServer(t *testing.T) *certServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	cs := &certServer{key: key, kid: "kid-1"}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&cs.hits, 1)
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
		_ = json.NewEncoder(w).Encode(map[string]string{cs.kid: string(certPEM)})
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *certServer) sign(t *testing.T, kid string, claims FirebaseClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(cs.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims(uid string) FirebaseClaims {
	now := time.Now()
	return FirebaseClaims{
		AuthTime: now.Add(-time.Minute).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Audience:  jwt.ClaimStrings{testProject},
			Issuer:    "https://securetoken.google.com/" + testProject,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestFirebaseVerifierAcceptsValidToken(t *testing.T) {
	cs := newCertServer(t)
	v := NewFirebaseVerifier(testProject, cs.URL, cs.Client())

	for i := 0; i < 2; i++ {
		uid, err := v.Verify(context.Background(), cs.sign(t, cs.kid, validClaims("user-1")))
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if uid != "user-1" {
			t.Fatalf("expected uid user-1, got %q", uid)
		}
	}
	if hits := atomic.LoadInt32(&cs.hits); hits != 1 {
		t.Fatalf("certs should be cached, fetched %d times", hits)
	}
}

func TestFirebaseVerifierRejects(t *testing.T) {
	cs := newCertServer(t)
	v := NewFirebaseVerifier(testProject, cs.URL, cs.Client())

	wrongAud := validClaims("u")
	wrongAud.Audience = jwt.ClaimStrings{"other-project"}

	wrongIss := validClaims("u")
	wrongIss.Issuer = "https://securetoken.google.com/other-project"

	expired := validClaims("u")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noSubject := validClaims("")

	cases := map[string]string{
		"wrong audience": cs.sign(t, cs.kid, wrongAud),
		"wrong issuer":   cs.sign(t, cs.kid, wrongIss),
		"expired":        cs.sign(t, cs.kid, expired),
		"empty subject":  cs.sign(t, cs.kid, noSubject),
		"unknown kid":    cs.sign(t, "kid-unknown", validClaims("u")),
		"garbage":        "not-a-jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tok); err != ErrInvalidToken {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestFirebaseVerifierRejectsHS256(t *testing.T) {
	cs := newCertServer(t)
	v := NewFirebaseVerifier(testProject, cs.URL, cs.Client())
	hs, _ := NewDevVerifier("secret").GenerateToken("u")
	if _, err := v.Verify(context.Background(), hs); err != ErrInvalidToken {
		t.Fatalf("HS256 token must be rejected, got %v", err)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=19302, must-revalidate"); got != 19302*time.Second {
		t.Fatalf("unexpected max-age %v", got)
	}
	if got := maxAge(""); got != defaultCertsTTL {
		t.Fatalf("expected default ttl, got %v", got)
	}
}

func TestDevVerifierRoundTrip(t *testing.T) {
	m := NewDevVerifier("dev-secret")
	tok, err := m.GenerateToken("uid-42")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	uid, err := m.Verify(context.Background(), tok)
	if err != nil || uid != "uid-42" {
		t.Fatalf("Verify = %q, %v", uid, err)
	}
	if _, err := NewDevVerifier("other").Verify(context.Background(), tok); err != ErrInvalidToken {
		t.Fatalf("token signed with another secret must fail, got %v", err)
	}
}
