package export

import (
	"context"
	"fmt"

	"github.com/symphony-contrib/export-bot/pkg/symphony"
	"go.uber.org/zap"
)

// Assembler combines one stream's metadata, membership and windowed message
// history into a StreamInfo.
type Assembler struct {
	api       PlatformAPI
	retriever *Retriever
	logger    *zap.Logger
}

func NewAssembler(api PlatformAPI, retriever *Retriever, logger *zap.Logger) *Assembler {
	return &Assembler{
		api:       api,
		retriever: retriever,
		logger:    logger,
	}
}

// BuildStreamInfo assembles the export view of one stream.
//
// A non-zero userID restricts the result to what that user may see: rooms
// with history viewing disabled only contribute messages from the user's
// join date onward (the lower bound is raised, never lowered), and streams
// the user is no longer a member of keep their membership list but
// contribute no messages at all. A failed room-info lookup degrades the
// stream to an empty message list instead of failing the run; a failed
// membership lookup fails the stream.
func (a *Assembler) BuildStreamInfo(ctx context.Context, sess *symphony.Session, userID int64, stream symphony.Stream, since, to int64, messageLimit int) (*StreamInfo, error) {
	a.logger.Debug("assembling stream info",
		zap.String("stream_id", stream.ID),
		zap.Int64("user_id", userID),
		zap.Int64("since", since),
		zap.Int64("to", to),
	)

	info := &StreamInfo{
		ID:       stream.ID,
		Type:     stream.StreamType.Type,
		Name:     stream.Name(),
		CrossPod: stream.CrossPod,
		Active:   stream.Active,
		Members:  []symphony.Member{},
		Messages: []symphony.Message{},
	}

	members, err := a.api.StreamMembers(ctx, sess, stream.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching membership for stream %s: %w", stream.ID, err)
	}
	if len(members) > 0 {
		info.Members = members
	}

	if userID != 0 && info.Type == symphony.StreamTypeRoom {
		room, err := a.api.RoomInfo(ctx, sess, stream.ID)
		if err != nil {
			// One room's attributes being unavailable should not sink the
			// whole run: keep the stream with its members and no messages.
			a.logger.Warn("room info lookup failed, skipping message retrieval",
				zap.String("stream_id", stream.ID),
				zap.Error(&PartialStreamFailure{StreamID: stream.ID, Err: err}),
			)
			return info, nil
		}
		if historyDisabled(room) {
			if member, ok := findMember(info.Members, userID); ok && member.JoinDate > since {
				a.logger.Warn("history viewing disabled and user joined after window start, raising lower bound to join date",
					zap.String("stream_id", stream.ID),
					zap.Int64("join_date", member.JoinDate),
					zap.Int64("requested_since", since),
				)
				since = member.JoinDate
			}
		}
	}

	if userID != 0 {
		if _, ok := findMember(info.Members, userID); !ok {
			// The stream appears in the user's listing but they are not a
			// current member (e.g. they left the room). Exporting its
			// history would leak other users' messages, so only the
			// membership metadata is kept.
			a.logger.Debug("user absent from stream membership, skipping messages",
				zap.String("stream_id", stream.ID),
				zap.Int64("user_id", userID),
			)
			return info, nil
		}
	}

	messages, err := a.retriever.FetchWindow(ctx, sess, stream.ID, since, to, messageLimit)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		info.Messages = messages
	}
	return info, nil
}

// historyDisabled reports whether the room explicitly disables history
// viewing for members who join late. An absent attribute leaves history on.
func historyDisabled(room *symphony.RoomInfo) bool {
	return room != nil &&
		room.RoomAttributes != nil &&
		room.RoomAttributes.ViewHistory != nil &&
		!*room.RoomAttributes.ViewHistory
}

func findMember(members []symphony.Member, userID int64) (symphony.Member, bool) {
	for _, m := range members {
		if m.User.UserID == userID {
			return m, true
		}
	}
	return symphony.Member{}, false
}
