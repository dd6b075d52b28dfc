package export

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/symphony-contrib/export-bot/pkg/config"
	"github.com/symphony-contrib/export-bot/pkg/symphony"
	"github.com/symphony-contrib/export-bot/pkg/text"
	"go.uber.org/zap"
)

// Exporter sequences a full export run: credential chain, stream
// enumeration, per-stream assembly, archive generation and delivery.
type Exporter struct {
	api       PlatformAPI
	assembler *Assembler
	archiver  Archiver
	messenger Messenger
	templates map[string]string

	// messageLimit caps retained messages per stream; zero means unlimited.
	messageLimit int

	logger *zap.Logger
}

func NewExporter(api PlatformAPI, assembler *Assembler, archiver Archiver, messenger Messenger, templates map[string]string, messageLimit int, logger *zap.Logger) *Exporter {
	return &Exporter{
		api:          api,
		assembler:    assembler,
		archiver:     archiver,
		messenger:    messenger,
		templates:    templates,
		messageLimit: messageLimit,
		logger:       logger,
	}
}

// archiveOrder is the delivery order of the generated archives.
var archiveOrder = []Format{FormatJSON, FormatCSV, FormatEML}

// ExportMessages runs one export for the requesting user and delivers the
// three archives plus a completion notice into replyStreamID.
//
// Streams are assembled strictly one after another: each stream's
// membership, room-info and message calls finish before the next stream
// starts. Spreading the load matters more here than wall-clock speed, since
// the agent rate-limits aggressively during bulk reads. The first
// unrecovered error aborts the remaining steps; no partial archives are
// delivered.
func (e *Exporter) ExportMessages(ctx context.Context, replyStreamID string, user User, since, to int64) error {
	runID := uuid.NewString()
	logger := e.logger.With(
		zap.String("run_id", runID),
		zap.Int64("user_id", user.UserID),
		zap.Int64("since", since),
		zap.Int64("to", to),
	)
	logger.Info("starting message history export")

	sess, err := e.api.Acquire(ctx, user.UserID)
	if err != nil {
		return err
	}

	streams, err := e.api.ListUserStreams(ctx, sess, user.UserID, symphony.DefaultStreamLimit)
	if err != nil {
		return fmt.Errorf("enumerating streams for user %d: %w", user.UserID, err)
	}
	logger.Info("enumerated user streams", zap.Int("streams", len(streams)))

	infos := make([]*StreamInfo, 0, len(streams))
	for _, stream := range streams {
		info, err := e.assembler.BuildStreamInfo(ctx, sess, user.UserID, stream, since, to, e.messageLimit)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	for _, format := range archiveOrder {
		archive, err := e.archiver.Build(infos, format)
		if err != nil {
			return fmt.Errorf("generating %s archive: %w", format, err)
		}

		filename := fmt.Sprintf("messages.%d.%d.%s.zip", since, to, format)
		if err := e.messenger.SendAttachment(ctx, replyStreamID, "", filename, "application/zip", archive); err != nil {
			return fmt.Errorf("delivering %s archive: %w", format, err)
		}
		logger.Info("archive delivered", zap.String("filename", filename))
	}

	logger.Info("message history export complete")
	return e.messenger.SendMessage(ctx, replyStreamID, text.Render(e.templates[config.TemplateComplete], user.FirstName))
}
