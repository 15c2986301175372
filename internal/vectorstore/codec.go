package vectorstore

import (
	"encoding/json"
	"fmt"

	"github.com/raglab/docuchat/internal/content"
)

// Metadata field names shared by the encode and decode paths. The
// storage layer accepts only scalar metadata values, so every list field
// is JSON-encoded on write and decoded back on read. Adding a structured
// field to EnrichedChunk requires touching both functions below, nowhere
// else.
const (
	metaChunkIndex    = "chunk_index"
	metaOriginalText  = "original_text"
	metaRawTables     = "raw_tables_html"
	metaTableVerdicts = "table_verdicts"
	metaImagePaths    = "image_paths"
	metaImageVerdicts = "image_verdicts"
	metaPageNumbers   = "page_numbers"
)

// EncodeMetadata flattens an EnrichedChunk into a scalar-only metadata
// map. The chunk's list-length invariants are enforced first: a mismatch
// is a defect and must not reach storage.
func EncodeMetadata(c *content.EnrichedChunk) (map[string]any, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to encode corrupt chunk: %w", err)
	}

	meta := map[string]any{
		metaChunkIndex:   c.Index,
		metaOriginalText: c.OriginalText,
	}
	for _, f := range []struct {
		key string
		val any
	}{
		{metaRawTables, emptyIfNilStrings(c.RawTables)},
		{metaTableVerdicts, emptyIfNilStrings(c.TableVerdicts)},
		{metaImagePaths, emptyIfNilStrings(c.ImagePaths)},
		{metaImageVerdicts, emptyIfNilStrings(c.ImageVerdicts)},
		{metaPageNumbers, emptyIfNilInts(c.PageNumbers)},
	} {
		encoded, err := json.Marshal(f.val)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.key, err)
		}
		meta[f.key] = string(encoded)
	}
	return meta, nil
}

// DecodeMetadata is the symmetric read path: callers never see the raw
// encoded strings.
func DecodeMetadata(meta map[string]any, searchableText string) (content.EnrichedChunk, error) {
	c := content.EnrichedChunk{
		SearchableText: searchableText,
		OriginalText:   stringField(meta, metaOriginalText),
	}

	switch v := meta[metaChunkIndex].(type) {
	case float64:
		c.Index = int(v)
	case int:
		c.Index = v
	}

	for _, f := range []struct {
		key  string
		dest *[]string
	}{
		{metaRawTables, &c.RawTables},
		{metaTableVerdicts, &c.TableVerdicts},
		{metaImagePaths, &c.ImagePaths},
		{metaImageVerdicts, &c.ImageVerdicts},
	} {
		if err := decodeJSONField(meta, f.key, f.dest); err != nil {
			return c, err
		}
	}
	if err := decodeJSONField(meta, metaPageNumbers, &c.PageNumbers); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("stored metadata is corrupt: %w", err)
	}
	return c, nil
}

func decodeJSONField(meta map[string]any, key string, dest any) error {
	raw, ok := meta[key].(string)
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func stringField(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func emptyIfNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
