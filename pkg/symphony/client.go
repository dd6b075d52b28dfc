package symphony

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/symphony-contrib/export-bot/pkg/config"
	"go.uber.org/zap"
	"software.sslmate.com/src/go-pkcs12"
)

const (
	// DefaultMessageJitter spreads message-page requests over up to a second
	// so concurrent stream fetches do not arrive at the agent in lockstep.
	DefaultMessageJitter = time.Second

	requestTimeout = 30 * time.Second
)

// Client is a typed REST client for the pod, agent, key-manager and
// compliance-export surfaces of the platform.
type Client struct {
	podURL   string
	agentURL string
	kmURL    string

	ceSessionURL string
	ceKeyURL     string
	ceEnabled    bool

	appID         string
	appRSAKeyPath string
	botUsername   string
	botRSAKeyPath string

	// Bot service-account tokens, acquired once at startup via Login and
	// read-only afterwards. Per-run credentials live in Session instead.
	botSessionToken    string
	botKeyManagerToken string

	httpClient   *http.Client
	ceHTTPClient *http.Client

	jitterMax time.Duration
	logger    *zap.Logger
}

// New builds a client from the loaded configuration. When compliance-export
// mode is enabled the client certificate is loaded eagerly so a bad
// certificate fails at startup, not mid-export.
func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	c := &Client{
		podURL:        cfg.Pod.URL(),
		agentURL:      cfg.Agent.URL(),
		kmURL:         cfg.KeyManager.URL(),
		appID:         cfg.AppID,
		appRSAKeyPath: cfg.AppRSAKeyPath,
		botUsername:   cfg.BotUsername,
		botRSAKeyPath: cfg.BotRSAKeyPath,
		httpClient:    &http.Client{Timeout: requestTimeout},
		jitterMax:     DefaultMessageJitter,
		logger:        logger,
	}

	if cfg.Compliance.Enabled {
		cert, err := loadClientCertificate(cfg.Compliance.CertPath, cfg.Compliance.CertPassword)
		if err != nil {
			return nil, fmt.Errorf("loading compliance client certificate: %w", err)
		}
		c.ceEnabled = true
		c.ceSessionURL = cfg.Compliance.SessionAuth.URL()
		c.ceKeyURL = cfg.Compliance.KeyAuth.URL()
		c.ceHTTPClient = &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
				},
			},
		}
	}

	return c, nil
}

// loadClientCertificate reads a PKCS#12 bundle and converts it into a TLS
// client certificate for the mutual-TLS compliance endpoints.
func loadClientCertificate(path, password string) (tls.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, err
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(raw, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding PKCS#12 bundle: %w", err)
	}

	chain := [][]byte{cert.Raw}
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}
	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// doJSON performs one JSON request against url and decodes the response body
// into out (when out is non-nil). Non-2xx statuses become UpstreamError with
// the response body as detail; 429 responses also carry the Retry-After hint.
func (c *Client) doJSON(ctx context.Context, client *http.Client, method, endpoint, url string, headers map[string]string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("building %s request: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &UpstreamError{Endpoint: endpoint, Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Detail: err.Error()}
	}

	c.logger.Debug("platform call finished",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ue := &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Detail:     string(raw),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				ue.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return ue
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("malformed response body: %v", err),
		}
	}
	return nil
}

// tokenResponse is the shared shape of every authentication endpoint.
type tokenResponse struct {
	Token string `json:"token"`
}
