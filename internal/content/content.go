package content

import (
	"fmt"
	"sort"
	"strings"
)

// Kind labels for chunk content.
const (
	KindText  = "text"
	KindTable = "table"
	KindImage = "image"
)

// DoNotUseMarker flags a table or image verdict as non-informative.
// Elements carrying it are never surfaced as visual evidence.
const DoNotUseMarker = "DO NOT USE"

// Element is a single piece of parsed document content.
// Exactly one of TextElement, TableElement, ImageElement implements it.
type Element interface {
	isElement()
	PageNumber() int
}

// TextElement is a run of narrative text.
type TextElement struct {
	Text string
	Page int
}

// TableElement is a table kept as raw HTML.
type TableElement struct {
	HTML string
	Page int
}

// ImageElement is an extracted image payload.
type ImageElement struct {
	Data []byte
	MIME string // e.g. "image/png"
	Page int
}

func (TextElement) isElement()  {}
func (TableElement) isElement() {}
func (ImageElement) isElement() {}

func (e TextElement) PageNumber() int  { return e.Page }
func (e TableElement) PageNumber() int { return e.Page }
func (e ImageElement) PageNumber() int { return e.Page }

// Chunk is a logical section of a parsed document grouping related
// text, table and image elements. Immutable once produced by a parser.
type Chunk struct {
	Text        string
	Tables      []string       // raw HTML, in document order
	Images      []ImageElement // in document order, addressable by index
	PageNumbers []int          // deduplicated, ascending
	Kinds       []string       // subset of {text, table, image}
}

// FromElements groups a run of elements into one Chunk.
func FromElements(elems []Element) Chunk {
	var c Chunk
	pages := map[int]bool{}
	kinds := map[string]bool{}

	for _, e := range elems {
		if p := e.PageNumber(); p > 0 {
			pages[p] = true
		}
		switch el := e.(type) {
		case TextElement:
			if c.Text != "" {
				c.Text += "\n\n"
			}
			c.Text += el.Text
			kinds[KindText] = true
		case TableElement:
			c.Tables = append(c.Tables, el.HTML)
			kinds[KindTable] = true
		case ImageElement:
			c.Images = append(c.Images, el)
			kinds[KindImage] = true
		}
	}

	for p := range pages {
		c.PageNumbers = append(c.PageNumbers, p)
	}
	sort.Ints(c.PageNumbers)

	for _, k := range []string{KindText, KindTable, KindImage} {
		if kinds[k] {
			c.Kinds = append(c.Kinds, k)
		}
	}
	return c
}

// EnrichedChunk is the unit stored in the vector index: a chunk plus the
// AI-generated searchable description and per-element relevance verdicts.
type EnrichedChunk struct {
	Index          int      `json:"chunk_index"` // 1-based within a document
	SearchableText string   `json:"searchable_text"`
	OriginalText   string   `json:"original_text"`
	RawTables      []string `json:"raw_tables_html"`
	TableVerdicts  []string `json:"table_verdicts"`
	ImagePaths     []string `json:"image_paths"`
	ImageVerdicts  []string `json:"image_verdicts"`
	PageNumbers    []int    `json:"page_numbers"`
}

// Validate checks the list-length invariants. A violation is a data
// integrity defect, never a user error.
func (c *EnrichedChunk) Validate() error {
	if len(c.TableVerdicts) != len(c.RawTables) {
		return fmt.Errorf("chunk %d: %d tables but %d table verdicts",
			c.Index, len(c.RawTables), len(c.TableVerdicts))
	}
	if len(c.ImageVerdicts) != len(c.ImagePaths) {
		return fmt.Errorf("chunk %d: %d images but %d image verdicts",
			c.Index, len(c.ImagePaths), len(c.ImageVerdicts))
	}
	return nil
}

// UsableImages returns the image paths whose verdicts do not carry the
// DO NOT USE marker, preserving order.
func (c *EnrichedChunk) UsableImages() []string {
	var out []string
	for i, p := range c.ImagePaths {
		if i < len(c.ImageVerdicts) && Excluded(c.ImageVerdicts[i]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Excluded reports whether a verdict carries the DO NOT USE marker.
func Excluded(verdict string) bool {
	return strings.Contains(strings.ToUpper(verdict), DoNotUseMarker)
}
