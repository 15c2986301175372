// Package enrich derives searchable descriptions for content chunks via
// schema-constrained generation calls, absorbing provider failures into
// deterministic fallback chunks so a batch never aborts on one chunk.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raglab/docuchat/internal/content"
	"github.com/raglab/docuchat/internal/genai"
	"github.com/raglab/docuchat/internal/imagestore"
	"github.com/raglab/docuchat/internal/keypool"
)

// Generator is the generation capability the enricher consumes.
// *genai.Client satisfies it; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req genai.GenerateRequest) (string, error)
}

const (
	fallbackSummaryLen = 300
	otherBackoffCap    = 10 * time.Second
	otherBackoffFactor = 1.5
)

// enrichmentSchema constrains the model to the four enrichment fields.
var enrichmentSchema = &genai.Schema{
	Type: "OBJECT",
	Properties: map[string]*genai.Schema{
		"questions": {
			Type:        "STRING",
			Description: "All potential questions answerable from this content.",
		},
		"summary": {
			Type:        "STRING",
			Description: "Comprehensive summary of all data and information.",
		},
		"image_verdicts": {
			Type:        "ARRAY",
			Items:       &genai.Schema{Type: "STRING"},
			Description: "One relevance verdict per attached image, in order.",
		},
		"table_verdicts": {
			Type:        "ARRAY",
			Items:       &genai.Schema{Type: "STRING"},
			Description: "One relevance verdict per table, in order.",
		},
	},
	Required: []string{"questions", "summary", "image_verdicts", "table_verdicts"},
}

type enrichmentResult struct {
	Questions     string   `json:"questions"`
	Summary       string   `json:"summary"`
	ImageVerdicts []string `json:"image_verdicts"`
	TableVerdicts []string `json:"table_verdicts"`
}

// Config tunes the retry policy.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxConcurrent  int
}

// Enricher turns content chunks into enriched chunks.
type Enricher struct {
	gen    Generator
	pool   *keypool.Pool
	images *imagestore.Store
	log    *slog.Logger
	cfg    Config

	// sleep is replaced in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(gen Generator, pool *keypool.Pool, images *imagestore.Store, log *slog.Logger, cfg Config) *Enricher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Enricher{
		gen:    gen,
		pool:   pool,
		images: images,
		log:    log,
		cfg:    cfg,
		sleep:  sleepCtx,
	}
}

// Enrich produces the enriched form of one chunk. It never returns an
// error: on exhausted retries or an invalid key it degrades to a
// deterministic fallback that keeps the list-length invariants intact.
// index is the 1-based chunk position; apiKey is the credential chosen
// by the caller (round-robin for batches).
func (e *Enricher) Enrich(ctx context.Context, chunk content.Chunk, index int, apiKey string) content.EnrichedChunk {
	log := e.log.With("chunk", index)

	imagePaths := e.saveImages(chunk, log)

	req := genai.GenerateRequest{
		Text:   BuildPrompt(chunk),
		Schema: enrichmentSchema,
	}
	for _, img := range chunk.Images {
		req.Images = append(req.Images, genai.InlineImage{MIME: img.MIME, Data: img.Data})
	}

	key := apiKey
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		raw, err := e.gen.Generate(ctx, key, req)
		if err == nil {
			e.pool.MarkWorking()
			enriched, perr := e.assemble(chunk, index, imagePaths, raw)
			if perr == nil {
				return enriched
			}
			err = perr
		}
		lastErr = err

		switch genai.KindOf(err) {
		case genai.KindInvalidKey:
			// Retrying the same key cannot succeed.
			log.Warn("invalid api key, using fallback", "error", err)
			key = e.pool.Rotate(keypool.ReasonExpired)
			return e.fallback(chunk, index, imagePaths)
		case genai.KindRateLimited:
			key = e.pool.Rotate(keypool.ReasonRateLimit)
			wait := backoff(e.cfg.InitialBackoff, 2, attempt, e.cfg.MaxBackoff)
			log.Warn("rate limited, backing off", "attempt", attempt, "wait", wait, "error", err)
			if e.sleep(ctx, wait) != nil {
				return e.fallback(chunk, index, imagePaths)
			}
		default:
			wait := backoff(e.cfg.InitialBackoff, otherBackoffFactor, attempt, otherBackoffCap)
			log.Warn("transient enrichment error", "attempt", attempt, "wait", wait, "error", err)
			if e.sleep(ctx, wait) != nil {
				return e.fallback(chunk, index, imagePaths)
			}
		}
	}

	log.Error("enrichment failed after retries, using fallback", "error", lastErr)
	return e.fallback(chunk, index, imagePaths)
}

// EnrichBatch runs Enrich over all chunks concurrently, one task per
// chunk, assigning credential i mod pool size to chunk i. One chunk's
// fallback never aborts its siblings; the call returns when every task
// finished, in input order. onDone, when non-nil, is invoked once per
// completed chunk (from worker goroutines, possibly concurrently).
func (e *Enricher) EnrichBatch(ctx context.Context, chunks []content.Chunk, onDone func(i int)) []content.EnrichedChunk {
	results := make([]content.EnrichedChunk, len(chunks))
	sem := make(chan struct{}, e.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, chunk content.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.Enrich(ctx, chunk, i+1, e.pool.KeyAt(i))
			if onDone != nil {
				onDone(i)
			}
		}(i, chunk)
	}
	wg.Wait()

	return results
}

// saveImages persists each image payload and returns the stored relative
// paths. A failed save drops that image from the chunk's evidence but
// never fails enrichment.
func (e *Enricher) saveImages(chunk content.Chunk, log *slog.Logger) []string {
	var paths []string
	for _, img := range chunk.Images {
		path, err := e.images.Save(img.Data, img.MIME)
		if err != nil {
			log.Error("image save failed", "error", err)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// assemble parses the structured response and builds the enriched chunk.
func (e *Enricher) assemble(chunk content.Chunk, index int, imagePaths []string, raw string) (content.EnrichedChunk, error) {
	var res enrichmentResult
	if err := json.Unmarshal([]byte(stripCodeBlock(raw)), &res); err != nil {
		return content.EnrichedChunk{}, fmt.Errorf("parse enrichment json: %w", err)
	}

	imageVerdicts := alignVerdicts(res.ImageVerdicts, len(imagePaths))
	tableVerdicts := alignVerdicts(res.TableVerdicts, len(chunk.Tables))

	enriched := content.EnrichedChunk{
		Index:          index,
		SearchableText: searchableText(res.Questions, res.Summary, imageVerdicts, tableVerdicts, len(imagePaths), len(chunk.Tables)),
		OriginalText:   chunk.Text,
		RawTables:      chunk.Tables,
		TableVerdicts:  tableVerdicts,
		ImagePaths:     imagePaths,
		ImageVerdicts:  imageVerdicts,
		PageNumbers:    chunk.PageNumbers,
	}
	if err := enriched.Validate(); err != nil {
		return content.EnrichedChunk{}, err
	}
	return enriched, nil
}

// fallback is the degraded enrichment used when generation is
// unavailable. Present elements get the DO NOT USE sentinel so they are
// never surfaced from a response the model did not actually assess.
func (e *Enricher) fallback(chunk content.Chunk, index int, imagePaths []string) content.EnrichedChunk {
	summary := chunk.Text
	if r := []rune(summary); len(r) > fallbackSummaryLen {
		summary = string(r[:fallbackSummaryLen]) + "..."
	}
	if n := len(chunk.Tables); n > 0 {
		summary += fmt.Sprintf("\n[Contains %d table(s)]", n)
	}
	if n := len(imagePaths); n > 0 {
		summary += fmt.Sprintf("\n[Contains %d image(s)]", n)
	}

	imageVerdicts := make([]string, len(imagePaths))
	for i := range imageVerdicts {
		imageVerdicts[i] = "***DO NOT USE THIS IMAGE*** (enrichment unavailable)"
	}
	tableVerdicts := make([]string, len(chunk.Tables))
	for i := range tableVerdicts {
		tableVerdicts[i] = "***DO NOT USE THIS TABLE*** (enrichment unavailable)"
	}

	questions := "Question generation failed for this section."
	return content.EnrichedChunk{
		Index:          index,
		SearchableText: searchableText(questions, summary, imageVerdicts, tableVerdicts, len(imagePaths), len(chunk.Tables)),
		OriginalText:   chunk.Text,
		RawTables:      chunk.Tables,
		TableVerdicts:  tableVerdicts,
		ImagePaths:     imagePaths,
		ImageVerdicts:  imageVerdicts,
		PageNumbers:    chunk.PageNumbers,
	}
}

// searchableText concatenates every enrichment facet so semantic search
// can match on any of them.
func searchableText(questions, summary string, imageVerdicts, tableVerdicts []string, imageCount, tableCount int) string {
	var sb strings.Builder
	sb.WriteString("QUESTIONS: ")
	sb.WriteString(questions)
	sb.WriteString("\n\nSUMMARY: ")
	sb.WriteString(summary)

	sb.WriteString("\n\nIMAGE_INTERPRETATION: ")
	if imageCount == 0 {
		sb.WriteString("No images present in this section.")
	} else {
		sb.WriteString(strings.Join(imageVerdicts, "\n"))
	}

	sb.WriteString("\n\nTABLE_INTERPRETATION: ")
	if tableCount == 0 {
		sb.WriteString("No tables present in this section.")
	} else {
		sb.WriteString(strings.Join(tableVerdicts, "\n"))
	}
	return sb.String()
}

// alignVerdicts forces the verdict list to the element count. Extra
// entries are dropped; missing ones get the sentinel, since an element
// the model did not assess must not be surfaced.
func alignVerdicts(verdicts []string, want int) []string {
	if want == 0 {
		return []string{}
	}
	out := make([]string, want)
	for i := 0; i < want; i++ {
		if i < len(verdicts) {
			out[i] = verdicts[i]
		} else {
			out[i] = "***DO NOT USE*** (no verdict returned)"
		}
	}
	return out
}

// backoff computes min(initial * factor^attempt, limit).
func backoff(initial time.Duration, factor float64, attempt int, limit time.Duration) time.Duration {
	wait := float64(initial)
	for i := 0; i < attempt; i++ {
		wait *= factor
	}
	if wait > float64(limit) {
		return limit
	}
	return time.Duration(wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
