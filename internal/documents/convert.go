package documents

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// DataURL embeds an image as data:<mime>;base64,<payload>. The media type is
// sniffed from the content, not taken from the file name.
func DataURL(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Kind classifies an upload by content.
func Kind(data []byte) string {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return "pdf"
	case strings.HasPrefix(mt.String(), "image/"):
		return "image"
	case strings.HasPrefix(mt.String(), "text/"):
		return "text"
	default:
		return ""
	}
}

// PDFText returns the text layer of a PDF, one page per line block. Pages
// without content or that fail to decode are skipped.
func PDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrInvalidInput, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
