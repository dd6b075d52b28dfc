package export

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/symphony-contrib/export-bot/pkg/config"
	"github.com/symphony-contrib/export-bot/pkg/symphony"
)

func exportFixtureAPI() *fakeAPI {
	return &fakeAPI{
		listStreams: func(context.Context, *symphony.Session, int64, int) ([]symphony.Stream, error) {
			return []symphony.Stream{testRoom(), testIM()}, nil
		},
		streamMembers: func(context.Context, *symphony.Session, string) ([]symphony.Member, error) {
			return membersWith(requesterID, 0), nil
		},
		streamMessages: pagedServer(genMessages(100, 5)),
	}
}

func newExporter(api *fakeAPI, archiver *fakeArchiver, messenger *fakeMessenger) *Exporter {
	logger := zap.NewNop()
	assembler := NewAssembler(api, NewRetriever(api, logger), logger)
	templates := map[string]string{
		config.TemplateComplete: "Done, {0}!",
	}
	return NewExporter(api, assembler, archiver, messenger, templates, 0, logger)
}

func TestExportMessages_DeliversArchivesAndCompletion(t *testing.T) {
	api := exportFixtureAPI()
	archiver := &fakeArchiver{}
	messenger := &fakeMessenger{}
	e := newExporter(api, archiver, messenger)

	user := User{UserID: requesterID, FirstName: "Alice"}
	err := e.ExportMessages(context.Background(), "reply-stream", user, 1000, 2000)
	require.NoError(t, err)

	assert.Equal(t, []Format{FormatJSON, FormatCSV, FormatEML}, archiver.formats)
	assert.Equal(t, []string{
		"messages.1000.2000.json.zip",
		"messages.1000.2000.csv.zip",
		"messages.1000.2000.eml.zip",
	}, messenger.attachments)
	require.Len(t, messenger.messages, 1)
	assert.Equal(t, "Done, Alice!", messenger.messages[0])
}

func TestExportMessages_AcquireFailurePropagates(t *testing.T) {
	api := exportFixtureAPI()
	denied := &symphony.AuthorizationError{UserID: requesterID}
	api.acquire = func(context.Context, int64) (*symphony.Session, error) {
		return nil, denied
	}
	archiver := &fakeArchiver{}
	messenger := &fakeMessenger{}
	e := newExporter(api, archiver, messenger)

	err := e.ExportMessages(context.Background(), "reply-stream", User{UserID: requesterID}, 1000, 2000)
	require.Error(t, err)

	var authz *symphony.AuthorizationError
	require.ErrorAs(t, err, &authz)
	assert.Equal(t, requesterID, authz.UserID)
	assert.Empty(t, messenger.attachments)
	assert.Empty(t, messenger.messages)
}

func TestExportMessages_StreamEnumerationFailureAborts(t *testing.T) {
	api := exportFixtureAPI()
	api.listStreams = func(context.Context, *symphony.Session, int64, int) ([]symphony.Stream, error) {
		return nil, errors.New("pod unavailable")
	}
	archiver := &fakeArchiver{}
	messenger := &fakeMessenger{}
	e := newExporter(api, archiver, messenger)

	err := e.ExportMessages(context.Background(), "reply-stream", User{UserID: requesterID}, 1000, 2000)
	require.Error(t, err)
	assert.Empty(t, archiver.formats)
	assert.Empty(t, messenger.attachments)
}

func TestExportMessages_AssemblyFailureDeliversNothing(t *testing.T) {
	api := exportFixtureAPI()
	calls := 0
	api.streamMembers = func(context.Context, *symphony.Session, string) ([]symphony.Member, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("pod unavailable")
		}
		return membersWith(requesterID, 0), nil
	}
	archiver := &fakeArchiver{}
	messenger := &fakeMessenger{}
	e := newExporter(api, archiver, messenger)

	err := e.ExportMessages(context.Background(), "reply-stream", User{UserID: requesterID}, 1000, 2000)
	require.Error(t, err)
	assert.Empty(t, archiver.formats)
	assert.Empty(t, messenger.attachments)
	assert.Empty(t, messenger.messages)
}

func TestExportMessages_ArchiveFailureAbortsDelivery(t *testing.T) {
	api := exportFixtureAPI()
	archiver := &fakeArchiver{err: errors.New("zip write failed")}
	messenger := &fakeMessenger{}
	e := newExporter(api, archiver, messenger)

	err := e.ExportMessages(context.Background(), "reply-stream", User{UserID: requesterID}, 1000, 2000)
	require.Error(t, err)
	assert.Empty(t, messenger.attachments)
	assert.Empty(t, messenger.messages)
}
