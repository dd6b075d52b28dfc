package symphony

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/symphony-contrib/export-bot/pkg/limiter"
	"go.uber.org/zap"
)

// MessagePageSize is the fixed upstream cap on one message-listing request.
const MessagePageSize = 500

// StreamMessages fetches one page of up to limit messages posted in the
// stream since the given epoch-millisecond timestamp. The agent returns the
// page newest-first. Each request is preceded by a random jitter delay so
// back-to-back page fetches across many streams spread their load.
//
// Message reads are the one call where compliance-export tokens, when
// configured, supersede the bot's own tokens.
func (c *Client) StreamMessages(ctx context.Context, sess *Session, streamID string, since int64, limit int) ([]Message, error) {
	if limit <= 0 || limit > MessagePageSize {
		limit = MessagePageSize
	}
	if err := limiter.Jitter(ctx, c.jitterMax); err != nil {
		return nil, err
	}

	c.logger.Debug("fetching stream messages",
		zap.String("stream_id", streamID),
		zap.Int64("since", since),
		zap.Int("limit", limit),
	)

	sessionToken, kmToken := sess.MessageTokens()
	url := fmt.Sprintf("%s/agent/v4/stream/%s/message?since=%d&limit=%d", c.agentURL, streamID, since, limit)
	headers := map[string]string{
		"sessionToken":    sessionToken,
		"keyManagerToken": kmToken,
	}

	var messages []Message
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, "stream messages", url, headers, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage posts a MessageML reply into a stream as the bot.
func (c *Client) SendMessage(ctx context.Context, streamID, messageML string) error {
	return c.sendMessageCreate(ctx, streamID, messageML, "", "", nil)
}

// SendAttachment posts a MessageML reply with one attached file.
func (c *Client) SendAttachment(ctx context.Context, streamID, messageML, filename, contentType string, content io.Reader) error {
	return c.sendMessageCreate(ctx, streamID, messageML, filename, contentType, content)
}

func (c *Client) sendMessageCreate(ctx context.Context, streamID, messageML, filename, contentType string, content io.Reader) error {
	c.logger.Debug("sending message",
		zap.String("stream_id", streamID),
		zap.String("attachment", filename),
	)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	if messageML == "" {
		messageML = "<messageML></messageML>"
	}
	if err := form.WriteField("message", messageML); err != nil {
		return fmt.Errorf("encoding message field: %w", err)
	}

	if content != nil {
		part, err := form.CreateFormFile("attachment", filename)
		if err != nil {
			return fmt.Errorf("encoding attachment %s: %w", filename, err)
		}
		if _, err := io.Copy(part, content); err != nil {
			return fmt.Errorf("writing attachment %s: %w", filename, err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finalizing message form: %w", err)
	}

	url := fmt.Sprintf("%s/agent/v4/stream/%s/message/create", c.agentURL, streamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("building message create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("sessionToken", c.botSessionToken)
	req.Header.Set("keyManagerToken", c.botKeyManagerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Endpoint: "message create", Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{
			Endpoint:   "message create",
			StatusCode: resp.StatusCode,
			Detail:     string(detail),
		}
	}
	return nil
}

// CreateDatafeed registers a new datafeed with the agent and returns its id.
func (c *Client) CreateDatafeed(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	url := c.agentURL + "/agent/v4/datafeed/create"
	headers := map[string]string{
		"sessionToken":    c.botSessionToken,
		"keyManagerToken": c.botKeyManagerToken,
	}
	if err := c.doJSON(ctx, c.httpClient, http.MethodPost, "datafeed create", url, headers, nil, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &UpstreamError{Endpoint: "datafeed create", StatusCode: http.StatusOK, Detail: "response is missing datafeed id"}
	}
	c.logger.Info("datafeed created", zap.String("datafeed_id", resp.ID))
	return resp.ID, nil
}

// ReadDatafeed long-polls the datafeed and returns the next batch of events.
// An empty batch (the agent timing out the poll) returns a nil slice.
func (c *Client) ReadDatafeed(ctx context.Context, datafeedID string) ([]DatafeedEvent, error) {
	url := fmt.Sprintf("%s/agent/v4/datafeed/%s/read", c.agentURL, datafeedID)
	headers := map[string]string{
		"sessionToken":    c.botSessionToken,
		"keyManagerToken": c.botKeyManagerToken,
	}

	var events []DatafeedEvent
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, "datafeed read", url, headers, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
