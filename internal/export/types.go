// Package export renders a user's recent notes as a digest and converts
// it to PDF with headless Chrome.
package export

import "errors"

// Format represents the digest output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Request contains parameters for a digest export.
type Request struct {
	UserID string
	Limit  int
	Title  string
	Format Format // defaults to PDF
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrNoNotes indicates the user has nothing to export.
	ErrNoNotes = errors.New("export: no notes to export")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat indicates an unknown output format was requested.
	ErrUnsupportedFormat = errors.New("export: unsupported format")
)
