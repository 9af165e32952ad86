// Package extractor turns uploaded resume documents into normalized text
// and structured fields. Extraction is a pure function of the document
// bytes, so redelivering the same task always produces the same output.
package extractor

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/resume"
)

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".html": "text/html",
	".txt":  "text/plain",
}

// SupportedExt reports whether the upload extension has an extraction path.
func SupportedExt(ext string) bool {
	_, ok := mimeTypes[strings.ToLower(ext)]
	return ok
}

// MimeType returns the content type for an extension, defaulting to
// application/octet-stream.
func MimeType(ext string) string {
	if mime, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Document is the extractor's output.
type Document struct {
	Text   string
	Fields resume.Fields
}

type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract derives normalized text and structured fields from the raw
// document. Parse failures are classified permanent.
func (e *Extractor) Extract(filename string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fault.Invalid("empty document %q", filename)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	var text string
	var err error

	switch ext {
	case ".pdf":
		text, err = e.extractTextFromPDF(data)
	case ".doc", ".docx":
		text, err = e.extractTextFromWord(data, ext)
	case ".html":
		text, err = e.extractTextFromHTML(data)
	case ".txt":
		text = string(data)
	default:
		return nil, fault.Invalid("unsupported file type %q", ext)
	}

	if err != nil {
		e.logger.Error("Text extraction failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		return nil, fault.Permanent(err, "extract "+ext)
	}

	text = NormalizeText(text)
	if text == "" {
		return nil, fault.Permanent(fmt.Errorf("no text content extracted"), "extract "+ext)
	}

	return &Document{
		Text:   text,
		Fields: DeriveFields(text),
	}, nil
}

func (e *Extractor) extractTextFromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Error("Failed to create PDF reader",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("failed to create PDF reader: %v", err)
	}

	totalPage := reader.NumPage()
	e.logger.Debug("Starting PDF text extraction",
		slog.Int("total_pages", totalPage))

	var fullText strings.Builder
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			e.logger.Warn("Null page encountered",
				slog.Int("page_number", pageIndex))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Error("Failed to extract text from page",
				slog.Int("page_number", pageIndex),
				slog.String("error", err.Error()))
			return "", fmt.Errorf("failed to extract text from page %d: %v", pageIndex, err)
		}

		fullText.WriteString(text)
		fullText.WriteString("\n")
	}

	if fullText.Len() == 0 {
		return "", fmt.Errorf("no text content extracted from PDF")
	}

	return fullText.String(), nil
}

func (e *Extractor) extractTextFromWord(data []byte, ext string) (string, error) {
	e.logger.Debug("Starting Word document text extraction",
		slog.Int("data_size", len(data)))

	result, err := docconv.Convert(bytes.NewReader(data), MimeType(ext), false)
	if err != nil {
		e.logger.Error("Failed to convert Word document",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("failed to convert Word document: %v", err)
	}

	if len(result.Body) == 0 {
		return "", fmt.Errorf("no text content extracted from Word document")
	}

	return result.Body, nil
}

func (e *Extractor) extractTextFromHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML document: %v", err)
	}
	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		sb.WriteString(sel.Text())
	})
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		// Fragment without a body element
		text = doc.Text()
	}
	return text, nil
}
