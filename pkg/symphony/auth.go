package symphony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/symphony-contrib/export-bot/pkg/limiter"
	"go.uber.org/zap"
)

const (
	// assertionLifetime is the validity window of the signed identity
	// assertions exchanged for session tokens. The platform rejects
	// anything longer than five minutes.
	assertionLifetime = 3 * time.Minute

	authRetries = 2
)

// signedAssertion creates a short-lived RS512 identity assertion for the
// given subject, signed with the PEM-encoded RSA key at keyPath.
func signedAssertion(keyPath, subject string) (string, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("reading signing key %s: %w", keyPath, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
	if err != nil {
		return "", fmt.Errorf("parsing signing key %s: %w", keyPath, err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS512, claims).SignedString(key)
}

// AppAuthenticate exchanges a signed application assertion for an
// application session token via the pod's pubkey app-auth endpoint.
func (c *Client) AppAuthenticate(ctx context.Context) (string, error) {
	c.logger.Debug("authenticating application", zap.String("app_id", c.appID))

	assertion, err := signedAssertion(c.appRSAKeyPath, c.appID)
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	url := c.podURL + "/login/pubkey/app/authenticate"
	err = c.doJSON(ctx, c.httpClient, http.MethodPost, "pubkey app auth", url, nil, map[string]string{"token": assertion}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &UpstreamError{Endpoint: "pubkey app auth", StatusCode: http.StatusOK, Detail: "response is missing token"}
	}
	return resp.Token, nil
}

// OBOAuthenticate exchanges the application session token for a delegated
// session token scoped to userID. A rejection here means the user has not
// installed or enabled the app, which is reported as AuthorizationError so
// the command layer can answer with actionable guidance instead of a
// transport failure.
func (c *Client) OBOAuthenticate(ctx context.Context, appToken string, userID int64) (string, error) {
	c.logger.Debug("authenticating on behalf of user", zap.Int64("user_id", userID))

	var resp tokenResponse
	url := fmt.Sprintf("%s/login/pubkey/app/user/%d/authenticate", c.podURL, userID)
	headers := map[string]string{"sessionToken": appToken}
	err := c.doJSON(ctx, c.httpClient, http.MethodPost, "pubkey OBO auth", url, headers, nil, &resp)
	if err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.StatusCode != 0 && ue.StatusCode != http.StatusTooManyRequests {
			return "", &AuthorizationError{UserID: userID}
		}
		return "", err
	}
	if resp.Token == "" {
		return "", &AuthorizationError{UserID: userID}
	}
	return resp.Token, nil
}

// Login authenticates the bot's own service account against the pod and the
// key manager. It runs once at startup; the resulting tokens back membership
// and room-info reads, and message reads when compliance mode is off.
func (c *Client) Login(ctx context.Context) error {
	c.logger.Info("logging in bot service account", zap.String("bot", c.botUsername))

	assertion, err := signedAssertion(c.botRSAKeyPath, c.botUsername)
	if err != nil {
		return &AuthError{Stage: "bot", Err: err}
	}

	var session tokenResponse
	err = c.doJSON(ctx, c.httpClient, http.MethodPost, "pubkey bot auth", c.podURL+"/login/pubkey/authenticate", nil, map[string]string{"token": assertion}, &session)
	if err != nil {
		return &AuthError{Stage: "bot", Err: err}
	}

	var km tokenResponse
	err = c.doJSON(ctx, c.httpClient, http.MethodPost, "pubkey km auth", c.kmURL+"/relay/pubkey/authenticate", nil, map[string]string{"token": assertion}, &km)
	if err != nil {
		return &AuthError{Stage: "keymanager", Err: err}
	}

	if session.Token == "" || km.Token == "" {
		return &AuthError{Stage: "bot", Err: fmt.Errorf("login response is missing a token")}
	}

	c.botSessionToken = session.Token
	c.botKeyManagerToken = km.Token
	return nil
}

// CEAuthenticate authenticates the compliance-export service identity via
// mutual TLS against the session-auth and key-manager-auth endpoints. Both
// sub-stages must succeed.
func (c *Client) CEAuthenticate(ctx context.Context) (sessionToken, keyManagerToken string, err error) {
	c.logger.Debug("authenticating compliance-export identity")

	var session tokenResponse
	err = c.doJSON(ctx, c.ceHTTPClient, http.MethodPost, "compliance session auth", c.ceSessionURL+"/sessionauth/v1/authenticate", nil, nil, &session)
	if err != nil {
		return "", "", &AuthError{Stage: "compliance-session", Err: err}
	}
	if session.Token == "" {
		return "", "", &AuthError{Stage: "compliance-session", Err: fmt.Errorf("response is missing token")}
	}

	var km tokenResponse
	err = c.doJSON(ctx, c.ceHTTPClient, http.MethodPost, "compliance key auth", c.ceKeyURL+"/keyauth/v1/authenticate", nil, nil, &km)
	if err != nil {
		return "", "", &AuthError{Stage: "compliance-key", Err: err}
	}
	if km.Token == "" {
		return "", "", &AuthError{Stage: "compliance-key", Err: fmt.Errorf("response is missing token")}
	}

	return session.Token, km.Token, nil
}

// Acquire runs the credential chain for one export run: application auth,
// compliance-export auth when enabled, then on-behalf-of auth for the target
// user. Each stage depends on the previous token. The returned Session is
// scoped to this run; nothing is kept on the client.
//
// Rate-limited responses are retried with the upstream's own backoff hint;
// every other failure aborts the chain immediately.
func (c *Client) Acquire(ctx context.Context, userID int64) (*Session, error) {
	appToken, err := limiter.CallWithRetry(ctx, authRetries, RetryAfterHint, func() (string, error) {
		return c.AppAuthenticate(ctx)
	})
	if err != nil {
		return nil, &AuthError{Stage: "app", Err: err}
	}

	sess := &Session{
		AppToken:           appToken,
		BotSessionToken:    c.botSessionToken,
		BotKeyManagerToken: c.botKeyManagerToken,
		CEEnabled:          c.ceEnabled,
	}

	if c.ceEnabled {
		ceSession, ceKM, err := c.CEAuthenticate(ctx)
		if err != nil {
			return nil, err
		}
		sess.CESessionToken = ceSession
		sess.CEKeyManagerToken = ceKM
	}

	oboToken, err := limiter.CallWithRetry(ctx, authRetries, RetryAfterHint, func() (string, error) {
		return c.OBOAuthenticate(ctx, appToken, userID)
	})
	if err != nil {
		return nil, err
	}
	sess.OBOToken = oboToken

	return sess, nil
}
