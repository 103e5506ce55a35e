package parser

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/types"
)

type fakePDFExtractor struct {
	text string
	err  error
}

func (f *fakePDFExtractor) ExtractFromFile(ctx context.Context, filePath string) (string, error) {
	return f.text, f.err
}

func newTestLoader(t *testing.T, pdfText string) *Loader {
	t.Helper()
	l, err := NewLoader(context.Background(),
		WithPDFExtractor(&fakePDFExtractor{text: pdfText}),
		WithLoaderLogger(testLogger()),
	)
	require.NoError(t, err)
	return l
}

func writeDocx(t *testing.T, path string, paragraphs ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	body := `<?xml version="1.0" encoding="UTF-8"?><w:document><w:body>`
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	body += `</w:body></w:document>`
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestLoaderSupportedFormats(t *testing.T) {
	dir := t.TempDir()
	loader := newTestLoader(t, "PDF resume text\nEXPERIENCE\nGo developer")

	txtPath := filepath.Join(dir, "alice.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("Alice Smith\nalice@example.com"), 0o644))

	mdPath := filepath.Join(dir, "bob.MD")
	require.NoError(t, os.WriteFile(mdPath, []byte("# Bob\n## Skills\nGo, Rust"), 0o644))

	docxPath := filepath.Join(dir, "carol.docx")
	writeDocx(t, docxPath, "Carol Jones", "R&amp;D Engineer")

	pdfPath := filepath.Join(dir, "dave.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("not really a pdf"), 0o644))

	cases := []struct {
		path     string
		format   types.DocumentFormat
		contains string
	}{
		{txtPath, types.FormatTXT, "alice@example.com"},
		{mdPath, types.FormatMD, "Go, Rust"},
		{docxPath, types.FormatDOCX, "R&D Engineer"},
		{pdfPath, types.FormatPDF, "Go developer"},
	}
	for _, tc := range cases {
		t.Run(string(tc.format), func(t *testing.T) {
			doc, err := loader.Load(context.Background(), tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.format, doc.Format)
			assert.NotEmpty(t, doc.Text)
			assert.Contains(t, doc.Text, tc.contains)
		})
	}
}

func TestLoaderDocxParagraphsOnSeparateLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "erin.docx")
	writeDocx(t, path, "First line", "Second line")

	doc, err := newTestLoader(t, "").Load(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "First line\nSecond line")
}

func TestDocxBodyTextBreaksAndTabs(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>
<w:r><w:t>Skills</w:t><w:tab /><w:t xml:space="preserve">Go </w:t></w:r><w:r><w:t>Rust</w:t></w:r></w:p>
<w:p><w:r><w:t>Page one</w:t><w:br w:type="page"/><w:t>Page two</w:t></w:r></w:p>
<w:p><w:r><w:t>R&amp;D</w:t></w:r></w:p>
</w:body></w:document>`

	text, err := docxBodyText(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"Skills Go Rust", "Page one", "Page two", "R&D"}, nonEmptyLines(text))
}

func TestDocxBodyTextMalformed(t *testing.T) {
	_, err := docxBodyText(strings.NewReader(`<w:document><w:body><w:p>`))
	assert.Error(t, err)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func TestLoaderPDFLinksDegradeToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frank.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-broken"), 0o644))

	doc, err := newTestLoader(t, "some extracted text").Load(context.Background(), path)
	require.NoError(t, err, "链接提取失败不应导致加载失败")
	assert.Empty(t, doc.Hyperlinks)
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	loader := newTestLoader(t, "")

	t.Run("unsupported", func(t *testing.T) {
		path := filepath.Join(dir, "resume.rtf")
		require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))
		_, err := loader.Load(context.Background(), path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat))

		var le *LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, "detect", le.Op)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := loader.Load(context.Background(), filepath.Join(dir, "missing.txt"))
		assert.True(t, errors.Is(err, ErrFileNotFound))
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(dir, "blank.txt")
		require.NoError(t, os.WriteFile(path, []byte("  \n\t "), 0o644))
		_, err := loader.Load(context.Background(), path)
		assert.True(t, errors.Is(err, ErrEmptyContent))
	})

	t.Run("invalid utf8 dropped", func(t *testing.T) {
		path := filepath.Join(dir, "bytes.txt")
		require.NoError(t, os.WriteFile(path, []byte("ok\xff\xfetext"), 0o644))
		doc, err := loader.Load(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "oktext", doc.Text)
	})
}

func TestIsSupportedExtension(t *testing.T) {
	assert.True(t, IsSupportedExtension("a.PDF"))
	assert.True(t, IsSupportedExtension("a.docx"))
	assert.False(t, IsSupportedExtension("a.doc"))
	assert.False(t, IsSupportedExtension("noext"))
}
