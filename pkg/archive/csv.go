package archive

import (
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/symphony-contrib/export-bot/pkg/export"
)

// csvRow is one exported message in the CSV rendition. Sender columns fall
// back to "-" for system messages without a sender.
type csvRow struct {
	MessageID  string `csv:"messageId"`
	Date       string `csv:"date"`
	SenderID   string `csv:"senderId"`
	SenderName string `csv:"senderName"`
	Message    string `csv:"message"`
}

func renderCSV(stream *export.StreamInfo) ([]byte, error) {
	rows := make([]csvRow, 0, len(stream.Messages))
	for _, msg := range stream.Messages {
		row := csvRow{
			MessageID:  msg.MessageID,
			Date:       isoDate(msg.Timestamp),
			SenderID:   "-",
			SenderName: "-",
			Message:    msg.Message,
		}
		if msg.User != nil {
			row.SenderID = formatUserID(msg.User.UserID)
			row.SenderName = msg.User.DisplayName
		}
		rows = append(rows, row)
	}
	return gocsv.MarshalBytes(&rows)
}

// isoDate renders an epoch-millisecond timestamp as an ISO-8601 UTC string.
func isoDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
