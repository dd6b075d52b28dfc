package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/symphony-contrib/export-bot/pkg/export"
	"github.com/symphony-contrib/export-bot/pkg/symphony"
)

func testGenerator() *Generator {
	g := NewGenerator(zap.NewNop())
	g.now = func() time.Time {
		return time.Date(2023, time.March, 15, 12, 0, 0, 0, time.UTC)
	}
	return g
}

func roomStream(id, name string, messages ...symphony.Message) *export.StreamInfo {
	return &export.StreamInfo{
		ID:     id,
		Type:   symphony.StreamTypeRoom,
		Name:   name,
		Active: true,
		Members: []symphony.Member{
			{User: symphony.MemberUser{UserID: 1, DisplayName: "Ann Smith", Email: "ann@example.com"}, IsCreator: true},
			{User: symphony.MemberUser{UserID: 2, DisplayName: "Bob Jones", Email: "bob@example.com"}, IsOwner: true},
		},
		Messages: messages,
	}
}

func listEntries(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		entries[f.Name] = string(data)
	}
	return entries
}

func TestBuild_SkipsStreamsWithoutMessages(t *testing.T) {
	g := testGenerator()
	streams := []*export.StreamInfo{
		roomStream("empty-room", "Empty Room"),
		roomStream("busy-room", "Busy Room",
			symphony.Message{MessageID: "m1", Timestamp: 1678881600000, Message: "hello",
				User: &symphony.MessageUser{UserID: 1, DisplayName: "Ann Smith", Email: "ann@example.com"}},
		),
	}

	buf, err := g.Build(streams, export.FormatJSON)
	require.NoError(t, err)

	entries := listEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "ROOM-BusyRoom-busy-room.json")
}

func TestBuild_JSONRoundTrip(t *testing.T) {
	g := testGenerator()
	stream := roomStream("room-1", "Design Review",
		symphony.Message{MessageID: "m1", Timestamp: 1678881600000, Message: "first",
			User: &symphony.MessageUser{UserID: 1, DisplayName: "Ann Smith", Email: "ann@example.com"}},
		symphony.Message{MessageID: "m2", Timestamp: 1678881660000, Message: "second",
			User: &symphony.MessageUser{UserID: 2, DisplayName: "Bob Jones", Email: "bob@example.com"}},
	)

	buf, err := g.Build([]*export.StreamInfo{stream}, export.FormatJSON)
	require.NoError(t, err)

	entries := listEntries(t, buf)
	require.Len(t, entries, 1)

	var decoded export.StreamInfo
	require.NoError(t, json.Unmarshal([]byte(entries["ROOM-DesignReview-room-1.json"]), &decoded))
	assert.Equal(t, stream.ID, decoded.ID)
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "m1", decoded.Messages[0].MessageID)
	assert.Equal(t, "m2", decoded.Messages[1].MessageID)
	assert.Len(t, decoded.Members, 2)
}

func TestBuild_CSVRendition(t *testing.T) {
	g := testGenerator()
	stream := roomStream("room-1", "Design Review",
		symphony.Message{MessageID: "m1", Timestamp: 1678881600000, Message: "hello there",
			User: &symphony.MessageUser{UserID: 42, DisplayName: "Ann Smith", Email: "ann@example.com"}},
		symphony.Message{MessageID: "m2", Timestamp: 1678881660000, Message: "member added"},
	)

	buf, err := g.Build([]*export.StreamInfo{stream}, export.FormatCSV)
	require.NoError(t, err)

	entries := listEntries(t, buf)
	body := entries["ROOM-DesignReview-room-1.csv"]
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "messageId,date,senderId,senderName,message", lines[0])
	assert.Equal(t, "m1,2023-03-15T12:00:00.000Z,42,Ann Smith,hello there", lines[1])
	// System message without a sender keeps placeholder columns.
	assert.Equal(t, "m2,2023-03-15T12:01:00.000Z,-,-,member added", lines[2])
}

func TestBuild_EMLFromCreator(t *testing.T) {
	g := testGenerator()
	stream := roomStream("room-1", "Design Review",
		symphony.Message{MessageID: "m1", Timestamp: 1678881600000, Message: "hello",
			User: &symphony.MessageUser{UserID: 1, DisplayName: "Ann Smith", Email: "ann@example.com"}},
	)

	buf, err := g.Build([]*export.StreamInfo{stream}, export.FormatEML)
	require.NoError(t, err)

	entries := listEntries(t, buf)
	body := entries["ROOM-DesignReview-room-1.eml"]
	assert.Contains(t, body, "From: ann@example.com\r\n")
	assert.Contains(t, body, "To: ann@example.com,bob@example.com\r\n")
	assert.Contains(t, body, "x-symphony-StreamID: room-1\r\n")
	assert.Contains(t, body, "Subject: Symphony: 2 users, 1 messages\r\n")
	assert.Contains(t, body, "2023-03-15T12:00:00.000Z Ann Smith - ann@example.com says:")
	assert.Contains(t, body, "Content-Type: multipart/mixed;")
}

func TestBuild_EMLFallsBackToOwner(t *testing.T) {
	g := testGenerator()
	stream := roomStream("room-1", "Design Review",
		symphony.Message{MessageID: "m1", Timestamp: 1678881600000, Message: "hello"},
	)
	stream.Members[0].IsCreator = false

	buf, err := g.Build([]*export.StreamInfo{stream}, export.FormatEML)
	require.NoError(t, err)

	entries := listEntries(t, buf)
	body := entries["ROOM-DesignReview-room-1.eml"]
	assert.Contains(t, body, "From: bob@example.com\r\n")
	// Senderless message renders placeholder identity.
	assert.Contains(t, body, "??? - ??? says")
}

func TestBuild_EMLWithoutCreatorOrOwnerFails(t *testing.T) {
	g := testGenerator()
	stream := roomStream("room-1", "Design Review",
		symphony.Message{MessageID: "m1", Timestamp: 1678881600000, Message: "hello"},
	)
	stream.Members[0].IsCreator = false
	stream.Members[1].IsOwner = false

	_, err := g.Build([]*export.StreamInfo{stream}, export.FormatEML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no member flagged creator or owner")
}

func TestBuild_UnsupportedFormat(t *testing.T) {
	g := testGenerator()
	stream := roomStream("room-1", "Design Review",
		symphony.Message{MessageID: "m1", Timestamp: 1678881600000, Message: "hello"},
	)

	_, err := g.Build([]*export.StreamInfo{stream}, export.Format("pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive format")
}

func TestEntryName_NoDisplayName(t *testing.T) {
	stream := &export.StreamInfo{ID: "abc123", Type: symphony.StreamTypeIM}
	assert.Equal(t, "IM-abc123.csv", entryName(stream, export.FormatCSV))
}
