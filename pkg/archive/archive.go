// Package archive turns assembled stream histories into downloadable zip
// archives in CSV, JSON and EML renditions.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/symphony-contrib/export-bot/pkg/export"
	"github.com/symphony-contrib/export-bot/pkg/text"
	"go.uber.org/zap"
)

// Generator implements export.Archiver. It is stateless between calls:
// every Build constructs a fresh zip writer, so concurrent builds for
// different formats never share an archive instance.
type Generator struct {
	logger *zap.Logger

	// now stamps EML generation times; overridable in tests.
	now func() time.Time
}

func NewGenerator(logger *zap.Logger) *Generator {
	return &Generator{
		logger: logger,
		now:    time.Now,
	}
}

// Build serializes every stream that has at least one message into one file
// of the requested format and packs the files into a zip. Streams without
// messages produce no file at all.
func (g *Generator) Build(streams []*export.StreamInfo, format export.Format) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := 0
	for _, stream := range streams {
		if len(stream.Messages) == 0 {
			continue
		}

		contents, err := g.renderStream(stream, format)
		if err != nil {
			return nil, fmt.Errorf("rendering stream %s as %s: %w", stream.ID, format, err)
		}

		w, err := zw.Create(entryName(stream, format))
		if err != nil {
			return nil, fmt.Errorf("adding archive entry for stream %s: %w", stream.ID, err)
		}
		if _, err := w.Write(contents); err != nil {
			return nil, fmt.Errorf("writing archive entry for stream %s: %w", stream.ID, err)
		}
		files++
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing %s archive: %w", format, err)
	}

	g.logger.Debug("archive generated",
		zap.String("format", string(format)),
		zap.Int("streams", len(streams)),
		zap.Int("files", files),
	)
	return &buf, nil
}

func (g *Generator) renderStream(stream *export.StreamInfo, format export.Format) ([]byte, error) {
	switch format {
	case export.FormatCSV:
		return renderCSV(stream)
	case export.FormatJSON:
		return json.MarshalIndent(stream, "", "  ")
	case export.FormatEML:
		return renderEML(stream, g.now())
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

// entryName derives a per-stream file name from the stream type, the
// sanitized display name when present, and the stream id. The id suffix
// keeps names unique even when display names collide or are absent.
func entryName(stream *export.StreamInfo, format export.Format) string {
	name := text.SanitizeFileName(stream.Name)
	if name != "" {
		return fmt.Sprintf("%s-%s-%s.%s", stream.Type, name, stream.ID, format)
	}
	return fmt.Sprintf("%s-%s.%s", stream.Type, stream.ID, format)
}
