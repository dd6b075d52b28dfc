package export

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"

	"github.com/symphony-contrib/export-bot/pkg/symphony"
)

// fakeAPI implements PlatformAPI with per-call hooks. Unset hooks return
// zero values so each test only wires the calls it cares about.
type fakeAPI struct {
	acquire        func(ctx context.Context, userID int64) (*symphony.Session, error)
	listStreams    func(ctx context.Context, sess *symphony.Session, userID int64, limit int) ([]symphony.Stream, error)
	streamMembers  func(ctx context.Context, sess *symphony.Session, streamID string) ([]symphony.Member, error)
	roomInfo       func(ctx context.Context, sess *symphony.Session, streamID string) (*symphony.RoomInfo, error)
	streamMessages func(ctx context.Context, sess *symphony.Session, streamID string, since int64, limit int) ([]symphony.Message, error)
}

func (f *fakeAPI) Acquire(ctx context.Context, userID int64) (*symphony.Session, error) {
	if f.acquire == nil {
		return &symphony.Session{}, nil
	}
	return f.acquire(ctx, userID)
}

func (f *fakeAPI) ListUserStreams(ctx context.Context, sess *symphony.Session, userID int64, limit int) ([]symphony.Stream, error) {
	if f.listStreams == nil {
		return nil, nil
	}
	return f.listStreams(ctx, sess, userID, limit)
}

func (f *fakeAPI) StreamMembers(ctx context.Context, sess *symphony.Session, streamID string) ([]symphony.Member, error) {
	if f.streamMembers == nil {
		return nil, nil
	}
	return f.streamMembers(ctx, sess, streamID)
}

func (f *fakeAPI) RoomInfo(ctx context.Context, sess *symphony.Session, streamID string) (*symphony.RoomInfo, error) {
	if f.roomInfo == nil {
		return &symphony.RoomInfo{}, nil
	}
	return f.roomInfo(ctx, sess, streamID)
}

func (f *fakeAPI) StreamMessages(ctx context.Context, sess *symphony.Session, streamID string, since int64, limit int) ([]symphony.Message, error) {
	if f.streamMessages == nil {
		return nil, nil
	}
	return f.streamMessages(ctx, sess, streamID, since, limit)
}

// genMessages builds count messages with timestamps firstTs, firstTs+1, ...
// oldest first.
func genMessages(firstTs int64, count int) []symphony.Message {
	msgs := make([]symphony.Message, count)
	for i := range msgs {
		ts := firstTs + int64(i)
		msgs[i] = symphony.Message{
			MessageID: "msg-" + strconv.FormatInt(ts, 10),
			Timestamp: ts,
		}
	}
	return msgs
}

// pagedServer serves pages the way the agent does: given a lower bound it
// returns the oldest messages strictly after it, newest first, at most
// limit per page.
func pagedServer(all []symphony.Message) func(ctx context.Context, sess *symphony.Session, streamID string, since int64, limit int) ([]symphony.Message, error) {
	return func(_ context.Context, _ *symphony.Session, _ string, since int64, limit int) ([]symphony.Message, error) {
		eligible := make([]symphony.Message, 0, len(all))
		for _, m := range all {
			if m.Timestamp > since {
				eligible = append(eligible, m)
			}
		}
		sort.Slice(eligible, func(i, j int) bool { return eligible[i].Timestamp < eligible[j].Timestamp })
		if len(eligible) > limit {
			eligible = eligible[:limit]
		}
		// Newest first within the page.
		for i, j := 0, len(eligible)-1; i < j; i, j = i+1, j-1 {
			eligible[i], eligible[j] = eligible[j], eligible[i]
		}
		return eligible, nil
	}
}

// fakeArchiver records the formats it was asked to build.
type fakeArchiver struct {
	formats []Format
	err     error
}

func (f *fakeArchiver) Build(streams []*StreamInfo, format Format) (*bytes.Buffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.formats = append(f.formats, format)
	return bytes.NewBufferString(string(format) + "-archive"), nil
}

// fakeMessenger records delivered messages and attachments.
type fakeMessenger struct {
	messages    []string
	attachments []string
}

func (f *fakeMessenger) SendMessage(_ context.Context, _ string, messageML string) error {
	f.messages = append(f.messages, messageML)
	return nil
}

func (f *fakeMessenger) SendAttachment(_ context.Context, _ string, _ string, filename, _ string, content io.Reader) error {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return err
	}
	f.attachments = append(f.attachments, filename)
	return nil
}
