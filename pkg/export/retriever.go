package export

import (
	"context"
	"fmt"

	"github.com/symphony-contrib/export-bot/pkg/symphony"
	"go.uber.org/zap"
)

// Retriever fetches all messages of one stream inside a time window by
// walking the agent's paged message listing.
type Retriever struct {
	api    PlatformAPI
	logger *zap.Logger
}

func NewRetriever(api PlatformAPI, logger *zap.Logger) *Retriever {
	return &Retriever{
		api:    api,
		logger: logger,
	}
}

// FetchWindow returns every message of streamID with since <= timestamp <= to,
// oldest first.
//
// The agent serves pages of up to MessagePageSize messages starting at the
// current lower bound, newest-first within the page. The walk keeps an
// accumulator and terminates when a page comes back short (no more data) or
// when the newest message of a full page already passes the upper bound; the
// terminal page is filtered to the window and, when messageLimit is
// non-zero, trimmed before the merge. Non-terminal pages advance the lower
// bound to their newest timestamp.
//
// The terminal trim index is computed from the sizes of the fetched page and
// the accumulator at merge time, not from the merged result; with a non-zero
// message limit on a multi-page stream this can retain a different window
// than the limit suggests. TestFetchWindow_LimitTrimsTerminalPage pins the
// exact behavior; read it before changing the trim.
//
// A page-fetch failure is logged and aborts the walk for this stream; there
// is no automatic retry.
func (r *Retriever) FetchWindow(ctx context.Context, sess *symphony.Session, streamID string, since, to int64, messageLimit int) ([]symphony.Message, error) {
	if since > to {
		return nil, nil
	}

	var acc []symphony.Message
	lower := since

	for {
		page, err := r.api.StreamMessages(ctx, sess, streamID, lower, symphony.MessagePageSize)
		if err != nil {
			r.logger.Error("message page fetch failed",
				zap.String("stream_id", streamID),
				zap.Int64("since", lower),
				zap.Error(err),
			)
			return nil, fmt.Errorf("fetching messages for stream %s: %w", streamID, err)
		}

		if len(page) < symphony.MessagePageSize || page[0].Timestamp > to {
			kept := filterUpTo(page, to)
			if messageLimit > 0 {
				kept = sliceFrom(kept, len(acc)-messageLimit)
			}
			acc = prepend(kept, acc)
			break
		}

		acc = prepend(page, acc)
		lower = page[0].Timestamp
	}

	reverse(acc)

	r.logger.Debug("window fetch complete",
		zap.String("stream_id", streamID),
		zap.Int64("since", since),
		zap.Int64("to", to),
		zap.Int("messages", len(acc)),
	)
	return acc, nil
}

// filterUpTo drops messages beyond the upper bound of the window.
func filterUpTo(msgs []symphony.Message, to int64) []symphony.Message {
	kept := make([]symphony.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp <= to {
			kept = append(kept, m)
		}
	}
	return kept
}

// sliceFrom returns the tail of msgs starting at start; a negative start
// counts from the end, and out-of-range values clamp to the bounds.
func sliceFrom(msgs []symphony.Message, start int) []symphony.Message {
	if start < 0 {
		start += len(msgs)
		if start < 0 {
			start = 0
		}
	}
	if start > len(msgs) {
		start = len(msgs)
	}
	return msgs[start:]
}

// prepend merges a freshly fetched page in front of the accumulator.
func prepend(page, acc []symphony.Message) []symphony.Message {
	merged := make([]symphony.Message, 0, len(page)+len(acc))
	merged = append(merged, page...)
	return append(merged, acc...)
}

func reverse(msgs []symphony.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
