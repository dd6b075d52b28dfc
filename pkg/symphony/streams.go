package symphony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/symphony-contrib/export-bot/pkg/limiter"
	"go.uber.org/zap"
)

const (
	// DefaultStreamLimit is the single-request ceiling on stream listing.
	// There is no pagination behind it: users with more streams than this
	// are not fully served, which is a documented limitation rather than a
	// condition to retry.
	DefaultStreamLimit = 1000

	listRetries = 2
)

// streamListRequest is the pod's streams/list request body.
type streamListRequest struct {
	StreamTypes            []StreamType `json:"streamTypes"`
	IncludeInactiveStreams bool         `json:"includeInactiveStreams"`
}

// ListUserStreams lists every IM, MIM and ROOM stream the target user is in,
// inactive streams included, using the delegated on-behalf-of token.
func (c *Client) ListUserStreams(ctx context.Context, sess *Session, userID int64, limit int) ([]Stream, error) {
	if limit <= 0 {
		limit = DefaultStreamLimit
	}
	c.logger.Debug("listing user streams", zap.Int64("user_id", userID), zap.Int("limit", limit))

	body := streamListRequest{
		StreamTypes: []StreamType{
			{Type: StreamTypeIM},
			{Type: StreamTypeMIM},
			{Type: StreamTypeRoom},
		},
		IncludeInactiveStreams: true,
	}
	url := fmt.Sprintf("%s/pod/v1/streams/list?limit=%d", c.podURL, limit)
	headers := map[string]string{"sessionToken": sess.OBOToken}

	return limiter.CallWithRetry(ctx, listRetries, RetryAfterHint, func() ([]Stream, error) {
		var streams []Stream
		if err := c.doJSON(ctx, c.httpClient, http.MethodPost, "stream list", url, headers, body, &streams); err != nil {
			return nil, err
		}
		return streams, nil
	})
}

// membershipResponse covers both shapes the pod returns for membership
// listings: a wrapped {"members": [...]} object or a bare array.
type membershipResponse struct {
	Members []Member `json:"members"`
}

// StreamMembers fetches the full membership list of a stream using the
// bot's admin privileges.
func (c *Client) StreamMembers(ctx context.Context, sess *Session, streamID string) ([]Member, error) {
	c.logger.Debug("fetching stream membership", zap.String("stream_id", streamID))

	url := fmt.Sprintf("%s/pod/v1/admin/stream/%s/membership/list", c.podURL, streamID)
	headers := map[string]string{
		"sessionToken":    sess.BotSessionToken,
		"keyManagerToken": sess.BotKeyManagerToken,
	}

	return limiter.CallWithRetry(ctx, listRetries, RetryAfterHint, func() ([]Member, error) {
		var raw json.RawMessage
		if err := c.doJSON(ctx, c.httpClient, http.MethodGet, "stream membership", url, headers, nil, &raw); err != nil {
			return nil, err
		}

		var wrapped membershipResponse
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Members != nil {
			return wrapped.Members, nil
		}
		var bare []Member
		if err := json.Unmarshal(raw, &bare); err == nil {
			return bare, nil
		}
		return nil, &UpstreamError{
			Endpoint:   "stream membership",
			StatusCode: http.StatusOK,
			Detail:     "response is neither a membership object nor a member array",
		}
	})
}

// RoomInfo looks up a room's attributes, including the history-visibility
// policy the assembler consults for late joiners.
func (c *Client) RoomInfo(ctx context.Context, sess *Session, streamID string) (*RoomInfo, error) {
	c.logger.Debug("fetching room info", zap.String("stream_id", streamID))

	url := fmt.Sprintf("%s/pod/v3/room/%s/info", c.podURL, streamID)
	headers := map[string]string{
		"sessionToken":    sess.BotSessionToken,
		"keyManagerToken": sess.BotKeyManagerToken,
	}

	var info RoomInfo
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, "room info", url, headers, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
