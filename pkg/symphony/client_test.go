package symphony

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeRSAKey generates an RSA signing key and writes it PEM-encoded into a
// temp file, returning the path and the key for assertion verification.
func writeRSAKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing-key.pem")
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path, key
}

// selfSignedCertificate issues a throwaway certificate for the mutual-TLS
// compliance tests.
func selfSignedCertificate(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "compliance-export-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

// newTestClient builds a client whose pod, agent and key-manager surfaces
// all point at the given base URL, with message jitter disabled.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	keyPath, _ := writeRSAKey(t)
	return &Client{
		podURL:        baseURL,
		agentURL:      baseURL,
		kmURL:         baseURL,
		appID:         "export-app",
		appRSAKeyPath: keyPath,
		botUsername:   "export-bot",
		botRSAKeyPath: keyPath,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		jitterMax:     0,
		logger:        zap.NewNop(),
	}
}

func botSession() *Session {
	return &Session{
		AppToken:           "app-token",
		OBOToken:           "obo-token",
		BotSessionToken:    "bot-session-token",
		BotKeyManagerToken: "bot-km-token",
	}
}

func ceSession() *Session {
	sess := botSession()
	sess.CEEnabled = true
	sess.CESessionToken = "ce-session-token"
	sess.CEKeyManagerToken = "ce-km-token"
	return sess
}
