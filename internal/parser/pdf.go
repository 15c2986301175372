package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/raglab/docuchat/internal/content"
)

// PDFPartitioner handles PDF files. When a remote partition server is
// configured it is tried first (it is the only path that yields tables
// and images); otherwise text is extracted locally per page.
type PDFPartitioner struct {
	Remote *Remote
}

func (p *PDFPartitioner) Partition(r io.Reader, filename string, opts Options) ([]content.Chunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	if p.Remote != nil {
		elems, err := p.Remote.PartitionElements(context.Background(), data, filename, opts)
		if err == nil {
			return Group(elems, opts), nil
		}
		// Fall through to local extraction on remote failure.
	}

	elems, err := localPDFElements(data)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return Group(elems, opts), nil
}

// localPDFElements extracts per-page text with ledongthuc/pdf. The
// library requires a ReadSeeker plus size, so bytes go through a temp file.
func localPDFElements(data []byte) ([]content.Element, error) {
	tmp, err := os.CreateTemp("", "docuchat-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	f, reader, err := pdflib.Open(tmpPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var elems []content.Element
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		elems = append(elems, content.TextElement{Text: text, Page: i})
	}
	return elems, nil
}
