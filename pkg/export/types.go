// Package export implements the message-history export pipeline: running the
// credential chain, enumerating a user's streams, retrieving time-windowed
// message history per stream, and handing the assembled results to the
// archive generator for delivery.
package export

import (
	"bytes"
	"context"
	"io"

	"github.com/symphony-contrib/export-bot/pkg/symphony"
)

// PlatformAPI is the slice of the platform client the pipeline depends on.
//
// Having the pipeline talk to an interface keeps the fetch-and-assemble
// logic testable against fakes without a live pod or agent.
type PlatformAPI interface {
	Acquire(ctx context.Context, userID int64) (*symphony.Session, error)
	ListUserStreams(ctx context.Context, sess *symphony.Session, userID int64, limit int) ([]symphony.Stream, error)
	StreamMembers(ctx context.Context, sess *symphony.Session, streamID string) ([]symphony.Member, error)
	RoomInfo(ctx context.Context, sess *symphony.Session, streamID string) (*symphony.RoomInfo, error)
	StreamMessages(ctx context.Context, sess *symphony.Session, streamID string, since int64, limit int) ([]symphony.Message, error)
}

// Messenger delivers replies and archive attachments back into a stream.
type Messenger interface {
	SendMessage(ctx context.Context, streamID, messageML string) error
	SendAttachment(ctx context.Context, streamID, messageML, filename, contentType string, content io.Reader) error
}

// Archiver turns assembled stream infos into a zip archive in one of the
// supported formats.
type Archiver interface {
	Build(streams []*StreamInfo, format Format) (*bytes.Buffer, error)
}

// Format selects the serialization of a generated archive.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatEML  Format = "eml"
)

// StreamInfo aggregates one stream with its membership and the messages that
// fall inside the requested export window, oldest first. It exists for the
// duration of a single export run.
type StreamInfo struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Name     string             `json:"name"`
	CrossPod bool               `json:"crosspod"`
	Active   bool               `json:"active"`
	Members  []symphony.Member  `json:"members"`
	Messages []symphony.Message `json:"messages"`
}

// User identifies the requester an export runs on behalf of.
type User struct {
	UserID    int64
	FirstName string
}

// PartialStreamFailure records that a single stream's room-info lookup
// failed and the stream was degraded to an empty message list instead of
// aborting the run.
type PartialStreamFailure struct {
	StreamID string
	Err      error
}

func (e *PartialStreamFailure) Error() string {
	return "skipping message retrieval for stream " + e.StreamID + ": " + e.Err.Error()
}

func (e *PartialStreamFailure) Unwrap() error {
	return e.Err
}
