package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// PDF writes a minimal single-font PDF with one page per entry. Each entry is
// a raw content stream; an empty entry produces a page with no content stream.
func PDF(pages ...string) []byte {
	var (
		buffer  bytes.Buffer
		offsets []int
	)
	writeObject := func(body string) {
		offsets = append(offsets, buffer.Len())
		fmt.Fprintf(&buffer, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buffer.WriteString("%PDF-1.4\n")

	// Catalog is 1, page tree 2, font 3; each page is followed by its stream.
	kids := make([]string, 0, len(pages))
	next := 4
	for _, content := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", next))
		next++
		if content != "" {
			next++
		}
	}
	writeObject("<< /Type /Catalog /Pages 2 0 R >>")
	writeObject(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObject("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for _, content := range pages {
		page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >>"
		if content != "" {
			page += fmt.Sprintf(" /Contents %d 0 R", len(offsets)+2)
		}
		writeObject(page + " >>")
		if content != "" {
			writeObject(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
		}
	}

	xrefOffset := buffer.Len()
	fmt.Fprintf(&buffer, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, offset := range offsets {
		fmt.Fprintf(&buffer, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buffer, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefOffset)
	return buffer.Bytes()
}

// PDFTextLine is a content stream showing one line of text in the PDF font.
func PDFTextLine(line string) string {
	return fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", line)
}
