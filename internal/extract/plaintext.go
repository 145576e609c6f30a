package extract

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

// PlainText decodes UTF-8, replacing invalid sequences and a leading BOM.
type PlainText struct{}

func (PlainText) Extract(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}
