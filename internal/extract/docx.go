package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
)

const (
	docxBodyPart = "word/document.xml"

	// DefaultDOCXPartBytes caps the decompressed size of word/document.xml.
	DefaultDOCXPartBytes int64 = 64 << 20
	// DefaultDOCXTextBytes caps the collected paragraph text.
	DefaultDOCXTextBytes = 4 << 20
)

// DOCX reads paragraph text from word/document.xml, ignoring styling. Zero
// limits use the defaults.
type DOCX struct {
	MaxPartBytes int64
	MaxTextBytes int
}

func (d DOCX) Extract(ctx context.Context, data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", unreadable("docx", err)
	}
	body, err := readZipPart(archive.File, docxBodyPart, d.partLimit())
	if err != nil {
		if errors.Is(err, apperr.ErrFileTooLarge) {
			return "", err
		}
		return "", unreadable("docx", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	paragraphs, err := docxParagraphs(body, d.textLimit())
	if err != nil {
		return "", unreadable("docx", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

func (d DOCX) partLimit() int64 {
	if d.MaxPartBytes > 0 {
		return d.MaxPartBytes
	}
	return DefaultDOCXPartBytes
}

func (d DOCX) textLimit() int {
	if d.MaxTextBytes > 0 {
		return d.MaxTextBytes
	}
	return DefaultDOCXTextBytes
}

func readZipPart(files []*zip.File, target string, limit int64) ([]byte, error) {
	for _, file := range files {
		if file == nil || !strings.EqualFold(strings.TrimSpace(file.Name), target) {
			continue
		}
		if file.UncompressedSize64 > uint64(limit) {
			return nil, apperr.Wrap(apperr.ErrFileTooLarge, "%s expands beyond %d bytes", target, limit)
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		// The header size is not trusted.
		body, err := io.ReadAll(io.LimitReader(rc, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > limit {
			return nil, apperr.Wrap(apperr.ErrFileTooLarge, "%s expands beyond %d bytes", target, limit)
		}
		return body, nil
	}
	return nil, errors.New("missing " + target)
}

// docxParagraphs walks w:p elements collecting w:t runs; w:tab and w:br
// become whitespace. Empty paragraphs are dropped and collection stops once
// maxText bytes have been gathered.
func docxParagraphs(body []byte, maxText int) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	var (
		paragraphs []string
		current    strings.Builder
		collected  int
		inText     bool
		inPara     bool
	)
	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			paragraphs = append(paragraphs, text)
			collected += len(text) + 1
		}
		current.Reset()
	}
	for collected < maxText {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch element := token.(type) {
		case xml.StartElement:
			switch element.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br", "cr":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch element.Name.Local {
			case "p":
				if inPara {
					flush()
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if !inText {
				continue
			}
			if room := maxText - collected - current.Len(); room > 0 {
				current.Write(element[:min(len(element), room)])
			}
		}
	}
	return paragraphs, nil
}
