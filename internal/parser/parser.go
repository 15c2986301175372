package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/raglab/docuchat/internal/content"
)

// Options are the partitioning parameters. MaxCharacters is the hard
// chunk ceiling, NewAfterNChars the soft one; text runs shorter than
// CombineTextUnderNChars are merged with their neighbors.
type Options struct {
	MaxCharacters          int
	NewAfterNChars         int
	CombineTextUnderNChars int
	ExtractImages          bool
	ExtractTables          bool
	Languages              []string
}

func (o Options) Validate() error {
	if o.MaxCharacters <= 0 {
		return fmt.Errorf("max_characters must be positive")
	}
	if o.MaxCharacters >= o.NewAfterNChars {
		return fmt.Errorf("max_characters (%d) must be less than new_after_n_chars (%d)",
			o.MaxCharacters, o.NewAfterNChars)
	}
	if o.CombineTextUnderNChars < 0 {
		return fmt.Errorf("combine_text_under_n_chars must not be negative")
	}
	return nil
}

// Partitioner converts raw document bytes into ordered content chunks.
type Partitioner interface {
	Partition(r io.Reader, filename string, opts Options) ([]content.Chunk, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".docx":     true,
}

// ForFile returns the appropriate partitioner for a filename. remote may
// be nil; it is only consulted for PDFs.
func ForFile(filename string, remote *Remote) (Partitioner, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFPartitioner{Remote: remote}, nil
	case ".txt":
		return &TextPartitioner{}, nil
	case ".md", ".markdown":
		return &MarkdownPartitioner{}, nil
	case ".csv":
		return &CSVPartitioner{}, nil
	case ".html", ".htm":
		return &HTMLPartitioner{}, nil
	case ".docx":
		return &DOCXPartitioner{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
