package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/raglab/docuchat/internal/content"
)

// TextPartitioner handles plain text files: one element per paragraph.
type TextPartitioner struct{}

func (p *TextPartitioner) Partition(r io.Reader, filename string, opts Options) ([]content.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var elems []content.Element
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			elems = append(elems, content.TextElement{Text: current.String()})
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return Group(elems, opts), nil
}
