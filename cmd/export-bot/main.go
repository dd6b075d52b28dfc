package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/symphony-contrib/export-bot/pkg/archive"
	"github.com/symphony-contrib/export-bot/pkg/bot"
	"github.com/symphony-contrib/export-bot/pkg/config"
	"github.com/symphony-contrib/export-bot/pkg/export"
	"github.com/symphony-contrib/export-bot/pkg/symphony"
	"github.com/symphony-contrib/export-bot/pkg/text"
)

const defaultConfigPath = "config.yaml"

// datafeedRetryDelay paces reconnects after a datafeed read failure; agents
// expire idle feeds and the loop recreates them.
const datafeedRetryDelay = 5 * time.Second

func main() {
	// Missing .env is fine; environment may be set by the runtime.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIGPATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", configPath, err)
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("export bot terminated", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	client, err := symphony.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("authenticating bot service account", zap.String("username", cfg.BotUsername))
	if err := client.Login(ctx); err != nil {
		return err
	}

	retriever := export.NewRetriever(client, logger)
	assembler := export.NewAssembler(client, retriever, logger)
	generator := archive.NewGenerator(logger)
	exporter := export.NewExporter(client, assembler, generator, client, cfg.Templates, cfg.StreamMessageLimit, logger)
	dispatcher := bot.New(exporter, client, cfg.Templates, logger)

	return readDatafeed(ctx, client, dispatcher, logger)
}

// readDatafeed runs the long-poll event loop, recreating the feed whenever
// the agent drops it, and hands every IM message to the command dispatcher.
func readDatafeed(ctx context.Context, client *symphony.Client, dispatcher *bot.Bot, logger *zap.Logger) error {
	for {
		feedID, err := client.CreateDatafeed(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("datafeed creation failed, retrying", zap.Error(err))
			if err := sleep(ctx, datafeedRetryDelay); err != nil {
				return err
			}
			continue
		}

		for {
			events, err := client.ReadDatafeed(ctx, feedID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("datafeed read failed, recreating feed", zap.Error(err))
				if err := sleep(ctx, datafeedRetryDelay); err != nil {
					return err
				}
				break
			}
			dispatchEvents(ctx, dispatcher, events, logger)
		}
	}
}

func dispatchEvents(ctx context.Context, dispatcher *bot.Bot, events []symphony.DatafeedEvent, logger *zap.Logger) {
	for _, event := range events {
		if event.Type != symphony.EventTypeMessageSent {
			continue
		}
		msg := event.Payload.MessageSent.Message
		if msg == nil || msg.Stream.StreamType != symphony.StreamTypeIM {
			continue
		}

		user := export.User{
			UserID:    msg.User.UserID,
			FirstName: msg.User.FirstName,
		}
		if err := dispatcher.HandleMessage(ctx, msg.Stream.StreamID, user, text.StripTags(msg.Message)); err != nil {
			logger.Error("command handling failed",
				zap.String("stream_id", msg.Stream.StreamID),
				zap.Int64("user_id", msg.User.UserID),
				zap.Error(err),
			)
		}
	}
}

func initLogger(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if isatty.IsTerminal(os.Stderr.Fd()) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core, zap.AddCaller())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
