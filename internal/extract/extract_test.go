package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	part, err := writer.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buffer.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Photosynthesis</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Plants convert </w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>light</w:t></w:r><w:r><w:t xml:space="preserve"> into energy.</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Step</w:t><w:tab/><w:t>one</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestRegistryPlainTextVerbatim(t *testing.T) {
	registry := NewRegistry()
	content := strings.Repeat("a", 2000)
	text, err := registry.Extract(context.Background(), Document{FileName: "notes.txt", MediaType: "text/plain; charset=utf-8", Data: []byte(content)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != content {
		t.Fatalf("expected text to be returned verbatim (len %d)", len(text))
	}
}

func TestPlainTextRepairsInvalidUTF8(t *testing.T) {
	text, err := PlainText{}.Extract(context.Background(), []byte("\xef\xbb\xbfcaf\xe9"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "caf�" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestDOCXParagraphs(t *testing.T) {
	registry := NewRegistry()
	text, err := registry.Extract(context.Background(), Document{FileName: "bio.docx", MediaType: MediaTypeDOCX, Data: buildDocx(t, sampleDocumentXML)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Photosynthesis\nPlants convert light into energy.\nStep\tone"
	if text != want {
		t.Fatalf("want %q got %q", want, text)
	}
}

func TestResolveFallsBackToExtension(t *testing.T) {
	registry := NewRegistry()
	testCases := []struct {
		name      string
		mediaType string
		fileName  string
		want      Extractor
	}{
		{name: "octet-docx", mediaType: "application/octet-stream", fileName: "a.DOCX", want: DOCX{}},
		{name: "empty-pdf", mediaType: "", fileName: "paper.pdf", want: PDF{}},
		{name: "csv-as-text", mediaType: "text/csv", fileName: "table.csv", want: PlainText{}},
		{name: "markdown", mediaType: "", fileName: "readme.md", want: PlainText{}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			extractor, err := registry.Resolve(testCase.mediaType, testCase.fileName)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if extractor != testCase.want {
				t.Fatalf("want %T got %T", testCase.want, extractor)
			}
		})
	}
}

func TestUnsupportedFormats(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()
	if _, err := registry.Extract(ctx, Document{FileName: "photo.png", MediaType: "image/png", Data: []byte{0x89}}); !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format for images, got %v", err)
	}
	if _, err := registry.Extract(ctx, Document{FileName: "broken.pdf", MediaType: MediaTypePDF, Data: []byte("not a pdf")}); !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format for corrupt pdf, got %v", err)
	}
	if _, err := registry.Extract(ctx, Document{FileName: "broken.docx", MediaType: MediaTypeDOCX, Data: []byte("PK?")}); !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format for corrupt docx, got %v", err)
	}
}

func TestRegisterCustomExtractor(t *testing.T) {
	registry := NewRegistry()
	registry.Register("application/x-custom", ExtractorFunc(func(context.Context, []byte) (string, error) {
		return "custom", nil
	}), ".cst")
	text, err := registry.Extract(context.Background(), Document{FileName: "x.cst", Data: nil})
	if err != nil || text != "custom" {
		t.Fatalf("unexpected result %q %v", text, err)
	}
}

func repeatedParagraphs(count int, line string) string {
	var builder strings.Builder
	builder.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for index := 0; index < count; index++ {
		builder.WriteString("<w:p><w:r><w:t>")
		builder.WriteString(line)
		builder.WriteString("</w:t></w:r></w:p>")
	}
	builder.WriteString("</w:body></w:document>")
	return builder.String()
}

func TestDOCXRejectsOversizedBody(t *testing.T) {
	// Highly repetitive text compresses to a small fraction of its size.
	body := repeatedParagraphs(1, strings.Repeat("a", 256<<10))
	data := buildDocx(t, body)
	if len(data) >= 64<<10 {
		t.Fatalf("expected a small compressed upload, got %d bytes", len(data))
	}

	_, err := DOCX{MaxPartBytes: 64 << 10}.Extract(context.Background(), data)
	if !errors.Is(err, apperr.ErrFileTooLarge) {
		t.Fatalf("expected file too large, got %v", err)
	}
	if apperr.HTTPStatus(err) != 413 {
		t.Fatalf("expected 413, got %d", apperr.HTTPStatus(err))
	}
}

func TestDOCXIgnoresUnderstatedPartSize(t *testing.T) {
	data := buildDocx(t, repeatedParagraphs(1, strings.Repeat("b", 8<<10)))
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	for _, file := range archive.File {
		file.UncompressedSize64 = 16
	}
	body, err := readZipPart(archive.File, docxBodyPart, 1<<10)
	if err == nil {
		t.Fatalf("expected an error for a part larger than its header claims, got %d bytes", len(body))
	}
}

func TestDOCXStopsCollectingAtTextLimit(t *testing.T) {
	line := strings.Repeat("x", 100)
	data := buildDocx(t, repeatedParagraphs(500, line))

	text, err := DOCX{MaxTextBytes: 1000}.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(text) > 1000 {
		t.Fatalf("expected at most 1000 bytes of text, got %d", len(text))
	}
	if !strings.HasPrefix(text, line+"\n"+line) {
		t.Fatalf("expected leading paragraphs to be kept, got %q", text[:min(len(text), 220)])
	}
}
