package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptFile       = errors.New("corrupt document file")
)

// Parser extracts plain text from uploaded document bytes.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse converts raw document bytes into plain text based on content type.
// Validation errors surface as ErrUnsupportedFormat or ErrCorruptFile.
func (p *Parser) Parse(raw []byte, contentType string) (string, error) {
	switch normalizeContentType(contentType) {
	case "application/pdf":
		return p.parsePDF(raw)
	case "text/plain", "text/markdown":
		return p.parseText(raw)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
	}
}

func (p *Parser) parsePDF(raw []byte) (text string, err error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrCorruptFile)
	}
	// The pdf library panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrCorruptFile, r)
		}
	}()
	readerAt := bytes.NewReader(raw)
	pdfReader, err := pdf.NewReader(readerAt, int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return string(out), nil
}

func (p *Parser) parseText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrCorruptFile)
	}
	return string(raw), nil
}

func normalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
