// Package bot is the chat command surface: it parses prefixed commands out
// of incoming messages, validates the requested date range and drives the
// export pipeline, replying through templated MessageML messages.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/symphony-contrib/export-bot/pkg/config"
	"github.com/symphony-contrib/export-bot/pkg/export"
	"github.com/symphony-contrib/export-bot/pkg/text"
)

// commandPrefixes mark a message as a command; anything else is ignored.
var commandPrefixes = []string{"/", "#"}

// defaultWindow is the export window used when the command carries no dates.
const defaultWindow = 24 * time.Hour

// Runner starts an export run. Implemented by export.Exporter.
type Runner interface {
	ExportMessages(ctx context.Context, replyStreamID string, user export.User, since, to int64) error
}

// ValidationError reports a malformed user-supplied date range. It is
// answered at the command boundary and never reaches the pipeline.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return "invalid date range: " + e.Reason
	}
	return fmt.Sprintf("invalid date %q: %s", e.Input, e.Reason)
}

// command is one entry of the dispatch table.
type command struct {
	handler func(ctx context.Context, req request) error
}

// request is one parsed command invocation.
type request struct {
	streamID string
	user     export.User
	args     []string
}

// Bot routes incoming command text to handlers.
type Bot struct {
	runner    Runner
	messenger export.Messenger
	templates map[string]string
	commands  map[string]command

	// now supplies the default window's upper bound; overridable in tests.
	now func() time.Time

	logger *zap.Logger
}

func New(runner Runner, messenger export.Messenger, templates map[string]string, logger *zap.Logger) *Bot {
	b := &Bot{
		runner:    runner,
		messenger: messenger,
		templates: templates,
		now:       time.Now,
		logger:    logger,
	}
	history := command{handler: b.handleHistory}
	b.commands = map[string]command{
		"history": history,
		"export":  history,
	}
	return b
}

// HandleMessage dispatches one incoming plain-text message. Messages
// without a command prefix are ignored; a prefixed but unknown command
// answers the help template.
func (b *Bot) HandleMessage(ctx context.Context, streamID string, user export.User, messageText string) error {
	body, ok := stripPrefix(messageText)
	if !ok {
		return nil
	}

	fields := strings.Fields(body)
	if len(fields) == 0 {
		return b.reply(ctx, streamID, b.templates[config.TemplateHelp])
	}

	name := strings.ToLower(fields[0])
	cmd, ok := b.commands[name]
	if !ok {
		b.logger.Info("unknown command, answering help",
			zap.String("command", name),
			zap.Int64("user_id", user.UserID),
		)
		return b.reply(ctx, streamID, b.templates[config.TemplateHelp])
	}

	return cmd.handler(ctx, request{
		streamID: streamID,
		user:     user,
		args:     fields[1:],
	})
}

// handleHistory validates the requested window, announces the run and hands
// off to the export pipeline. Pipeline failures are reported back to the
// requester with the error detail.
func (b *Bot) handleHistory(ctx context.Context, req request) error {
	since, to, dateText, err := b.parseWindow(req.args)
	if err != nil {
		b.logger.Info("rejecting history command",
			zap.Int64("user_id", req.user.UserID),
			zap.Error(err),
		)
		return b.reply(ctx, req.streamID,
			b.templates[config.TemplateInvalidDate]+b.templates[config.TemplateHelp])
	}

	b.logger.Info("history export requested",
		zap.Int64("user_id", req.user.UserID),
		zap.Int64("since", since),
		zap.Int64("to", to),
	)

	if err := b.reply(ctx, req.streamID,
		text.Render(b.templates[config.TemplateStart], req.user.FirstName, dateText)); err != nil {
		return err
	}

	if err := b.runner.ExportMessages(ctx, req.streamID, req.user, since, to); err != nil {
		b.logger.Error("export run failed",
			zap.Int64("user_id", req.user.UserID),
			zap.Error(err),
		)
		return b.reply(ctx, req.streamID,
			text.Render(b.templates[config.TemplateError], req.user.FirstName, err.Error()))
	}
	return nil
}

// parseWindow turns the optional [since] [to] arguments into an epoch
// millisecond window, defaulting to the trailing 24 hours ending now, and a
// human-readable description of the range for the start reply.
func (b *Bot) parseWindow(args []string) (since, to int64, dateText string, err error) {
	to = b.now().UnixMilli()
	since = to - defaultWindow.Milliseconds()

	if len(args) >= 1 {
		parsed, perr := dateparse.ParseAny(args[0])
		if perr != nil {
			return 0, 0, "", &ValidationError{Input: args[0], Reason: "unparseable date"}
		}
		since = parsed.UnixMilli()
	}

	explicitTo := len(args) >= 2
	if explicitTo {
		parsed, perr := dateparse.ParseAny(args[1])
		if perr != nil {
			return 0, 0, "", &ValidationError{Input: args[1], Reason: "unparseable date"}
		}
		to = parsed.UnixMilli()
	}

	if since < 0 || to < 0 {
		return 0, 0, "", &ValidationError{Reason: "timestamps must not predate the epoch"}
	}
	if since > to {
		return 0, 0, "", &ValidationError{Reason: "window start is after its end"}
	}

	dateText = "since " + time.UnixMilli(since).UTC().Format("Mon Jan 2 2006")
	if explicitTo {
		dateText += " to " + time.UnixMilli(to).UTC().Format("Mon Jan 2 2006")
	}
	return since, to, dateText, nil
}

func (b *Bot) reply(ctx context.Context, streamID, messageML string) error {
	if err := b.messenger.SendMessage(ctx, streamID, messageML); err != nil {
		b.logger.Error("reply delivery failed",
			zap.String("stream_id", streamID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func stripPrefix(messageText string) (string, bool) {
	for _, prefix := range commandPrefixes {
		if rest, ok := strings.CutPrefix(messageText, prefix); ok {
			return rest, true
		}
	}
	return "", false
}
