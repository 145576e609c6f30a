package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF reads the text layer page by page. Embedded images are ignored, so a
// scanned document produces empty text.
type PDF struct{}

func (PDF) Extract(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			text, err = "", unreadable("pdf", recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", unreadable("pdf", err)
	}
	var builder strings.Builder
	for index := 1; index <= reader.NumPage(); index++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(index)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", unreadable("pdf", err)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(content)
	}
	return builder.String(), nil
}
