// Package export renders the café menu as a printable PDF or a spreadsheet and
// optionally publishes the result to object storage.
package export

import (
	"errors"
	"fmt"
	"strings"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a route or query value onto a supported format.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// Request contains parameters for an export operation
type Request struct {
	Format  Format
	Publish bool
}

// Result contains the export output. URL is set once the file was published.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	URL      string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates the requested format is neither pdf nor xlsx.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPublishDisabled indicates publishing was requested without object storage.
	ErrPublishDisabled = errors.New("export publishing disabled")
)
