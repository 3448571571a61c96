package services

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// minReadableRatio is the share of printable runes below which a text layer
// is treated as undecodable glyph codes.
const minReadableRatio = 0.85

// ExtractedText is the text layer of a PDF.
type ExtractedText struct {
	Text      string
	PageCount int
}

// PDFExtractor validates PDFs with pdfcpu and decodes their text layer, font
// encodings and ToUnicode maps included, with ledongthuc/pdf.
type PDFExtractor struct{}

// Extract validates the PDF and returns its text with a "--- Page N ---"
// marker before each page. Pages whose content cannot be decoded are skipped.
func (PDFExtractor) Extract(data []byte) (ExtractedText, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return ExtractedText{}, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return ExtractedText{}, fmt.Errorf("failed to validate PDF: %w", err)
	}

	pages, err := pageTexts(data)
	if err != nil {
		return ExtractedText{}, fmt.Errorf("failed to decode PDF text: %w", err)
	}

	var b strings.Builder
	for i, text := range pages {
		text = strings.TrimSpace(cleanText(text))
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n%s\n", i+1, text)
	}
	return ExtractedText{Text: strings.TrimSpace(b.String()), PageCount: ctx.PageCount}, nil
}

// pageTexts returns the plain text of every page, "" for unreadable pages.
// The decoder panics on some malformed objects, so panics become errors.
func pageTexts(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf decoder panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Debug("Skipping page without readable content.", "page", i, "error", err)
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

// cleanText drops invalid UTF-8 and control characters other than line
// breaks and tabs.
func cleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r), r == utf8.RuneError:
			return -1
		}
		return r
	}, s)
}

// readableText reports whether s looks like decoded text rather than raw
// glyph codes: valid UTF-8 with mostly printable runes.
func readableText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	total, printable := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsPrint(r) && r != utf8.RuneError && !unicode.Is(unicode.Co, r) {
			printable++
		}
	}
	if total == 0 {
		return false
	}
	return float64(printable)/float64(total) >= minReadableRatio
}
