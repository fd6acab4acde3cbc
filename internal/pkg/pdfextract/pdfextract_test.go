package pdfextract

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal single-font PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var objects []string
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+i*2)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+i*2),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractText(t *testing.T) {
	data := buildPDF("Hello World", "Second page text")

	text, pages, err := ExtractText(data)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Contains(t, text, "Hello World")
	assert.Contains(t, text, "Second page text")
	assert.Less(t, bytes.Index([]byte(text), []byte("Hello")), bytes.Index([]byte(text), []byte("Second")))
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(buildPDF("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("this is definitely not a pdf document, just some text padding it out a bit more"),
		"truncated": buildPDF("Hello")[:60],
		"bad xref":  append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("garbage "), 20)...),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			text, _, err := ExtractText(data)
			assert.Error(t, err)
			assert.Empty(t, text)
		})
	}
}
