package parser

import (
	"github.com/raglab/docuchat/internal/content"
)

// Group folds an ordered element sequence into content chunks following
// the by-title chunking parameters: a chunk closes once its text passes
// NewAfterNChars, or when appending would exceed MaxCharacters. Tables
// and images attach to the chunk that was open when they appeared; text
// runs shorter than CombineTextUnderNChars never force a split on their
// own.
func Group(elems []content.Element, opts Options) []content.Chunk {
	var chunks []content.Chunk
	var group []content.Element
	textLen := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		c := content.FromElements(group)
		if c.Text != "" || len(c.Tables) > 0 || len(c.Images) > 0 {
			chunks = append(chunks, c)
		}
		group = nil
		textLen = 0
	}

	for _, e := range elems {
		switch el := e.(type) {
		case content.TextElement:
			n := len(el.Text)
			if textLen > 0 && textLen+n > opts.MaxCharacters && textLen >= opts.CombineTextUnderNChars {
				flush()
			}
			group = append(group, el)
			textLen += n
			if textLen >= opts.NewAfterNChars {
				flush()
			}
		case content.TableElement:
			if !opts.ExtractTables {
				continue
			}
			group = append(group, el)
		case content.ImageElement:
			if !opts.ExtractImages {
				continue
			}
			group = append(group, el)
		}
	}
	flush()

	return chunks
}
