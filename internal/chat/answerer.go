package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raglab/docuchat/internal/content"
	"github.com/raglab/docuchat/internal/genai"
	"github.com/raglab/docuchat/internal/keypool"
	"github.com/raglab/docuchat/internal/vectorstore"
)

const systemPrompt = `You are a helpful assistant answering questions about a document.

Use ONLY the provided document context to answer. If the context does not
contain the answer, say so instead of guessing.

The context may list numbered images. When an image directly supports your
answer (a chart, diagram or figure the user should see), include its number
in "image_indices". Reference only listed image numbers, and only when the
image genuinely helps. Leave "image_indices" empty otherwise.`

// answerSchema constrains the model to an answer plus image references.
var answerSchema = &genai.Schema{
	Type: "OBJECT",
	Properties: map[string]*genai.Schema{
		"answer": {
			Type:        "STRING",
			Description: "The answer to the user's question, grounded in the context.",
		},
		"image_indices": {
			Type:        "ARRAY",
			Items:       &genai.Schema{Type: "INTEGER"},
			Description: "Numbers of context images that support the answer.",
		},
	},
	Required: []string{"answer", "image_indices"},
}

type answerResult struct {
	Answer       string `json:"answer"`
	ImageIndices []int  `json:"image_indices"`
}

// Searcher is the retrieval capability the answerer consumes.
// *vectorstore.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, collectionName, query string, k int) ([]vectorstore.RetrievedChunk, error)
}

// Generator is the answer-generation capability.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req genai.GenerateRequest) (string, error)
}

// ImageResolver loads a stored image as a data URI.
// *imagestore.Store satisfies it.
type ImageResolver interface {
	DataURI(relPath string) (string, error)
}

// Options tunes retrieval depth and stream pacing.
type Options struct {
	SearchK    int
	PieceSize  int           // characters per streamed content event
	PieceDelay time.Duration // pause between content events
	MaxRetries int
}

// Answerer runs one question through search, generation and streaming.
type Answerer struct {
	search Searcher
	gen    Generator
	pool   *keypool.Pool
	images ImageResolver
	log    *slog.Logger
	opts   Options
}

func NewAnswerer(search Searcher, gen Generator, pool *keypool.Pool, images ImageResolver, log *slog.Logger, opts Options) *Answerer {
	if opts.SearchK <= 0 {
		opts.SearchK = 5
	}
	if opts.PieceSize <= 0 {
		opts.PieceSize = 64
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Answerer{
		search: search,
		gen:    gen,
		pool:   pool,
		images: images,
		log:    log,
		opts:   opts,
	}
}

// Ask answers a question within a session, emitting progress and content
// events on the returned channel. The channel always terminates with an
// end event and is closed when the turn finishes or ctx is cancelled.
// History is updated only after a fully successful turn.
func (a *Answerer) Ask(ctx context.Context, session *Session, question string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		a.run(ctx, session, question, events)
	}()
	return events
}

func (a *Answerer) run(ctx context.Context, session *Session, question string, events chan<- Event) {
	// Two concurrent messages against the same history must not
	// interleave; the second turn waits for the first to finish.
	session.turn.Lock()
	defer session.turn.Unlock()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		a.log.Error("chat turn failed", "session", session.ID, "error", err)
		emit(newEvent(EventError, map[string]any{"message": err.Error()}))
		emit(newEvent(EventEnd, nil))
	}

	if !emit(newEvent(EventSearchStart, map[string]any{"query": question})) {
		return
	}
	retrieved, err := a.search.Search(ctx, session.Collection, question, a.opts.SearchK)
	if err != nil {
		fail(fmt.Errorf("search: %w", err))
		return
	}
	if !emit(newEvent(EventSearchComplete, map[string]any{"chunks_found": len(retrieved)})) {
		return
	}

	docContext, catalog := buildContext(retrieved)

	if !emit(newEvent(EventResponseStart, nil)) {
		return
	}
	res, err := a.generate(ctx, session, question, docContext, len(catalog))
	if err != nil {
		fail(err)
		return
	}

	for _, piece := range splitPieces(res.Answer, a.opts.PieceSize) {
		if !emit(newEvent(EventContent, map[string]any{"text": piece})) {
			return
		}
		if a.opts.PieceDelay > 0 {
			select {
			case <-time.After(a.opts.PieceDelay):
			case <-ctx.Done():
				return
			}
		}
	}

	refs := resolveIndices(res.ImageIndices, len(catalog))
	imagesShown := 0
	if len(refs) > 0 {
		if !emit(newEvent(EventImagesFound, map[string]any{"count": len(refs)})) {
			return
		}
		for _, idx := range refs {
			path := catalog[idx-1]
			uri, err := a.images.DataURI(path)
			if err != nil {
				a.log.Warn("image reference unresolvable", "path", path, "error", err)
				continue
			}
			ev := newEvent(EventImage, map[string]any{
				"index":    idx,
				"path":     path,
				"data_uri": uri,
			})
			if !emit(ev) {
				return
			}
			imagesShown++
		}
	}

	session.recordExchange(question, res.Answer)
	emit(newEvent(EventComplete, map[string]any{
		"answer":         res.Answer,
		"context_chunks": len(retrieved),
		"images_shown":   imagesShown,
	}))
	emit(newEvent(EventEnd, nil))
}

// generate calls the model with rotation on key failures. The chat path
// is interactive, so failed attempts rotate and retry immediately
// instead of backing off.
func (a *Answerer) generate(ctx context.Context, session *Session, question, docContext string, imageCount int) (answerResult, error) {
	req := genai.GenerateRequest{
		System: systemPrompt,
		Text:   buildTurnPrompt(session.History(), question, docContext, imageCount),
		Schema: answerSchema,
	}

	key := a.pool.Current()
	var lastErr error
	for attempt := 0; attempt < a.opts.MaxRetries; attempt++ {
		raw, err := a.gen.Generate(ctx, key, req)
		if err == nil {
			a.pool.MarkWorking()
			var res answerResult
			if perr := json.Unmarshal([]byte(raw), &res); perr != nil {
				return answerResult{}, fmt.Errorf("parse answer json: %w", perr)
			}
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return answerResult{}, ctx.Err()
		}

		switch genai.KindOf(err) {
		case genai.KindInvalidKey:
			key = a.pool.Rotate(keypool.ReasonExpired)
		case genai.KindRateLimited:
			key = a.pool.Rotate(keypool.ReasonRateLimit)
		}
	}
	return answerResult{}, fmt.Errorf("generate answer: %w", lastErr)
}

// buildContext renders retrieved chunks into a context block and returns
// the flattened image catalog: usable image paths in retrieval order,
// addressed 1-based by the numbering shown to the model. Tables and
// images whose verdicts carry the exclusion marker are left out.
func buildContext(retrieved []vectorstore.RetrievedChunk) (string, []string) {
	var sb strings.Builder
	var catalog []string

	for i, rc := range retrieved {
		fmt.Fprintf(&sb, "--- Context %d", i+1)
		if len(rc.PageNumbers) > 0 {
			fmt.Fprintf(&sb, " (pages %s)", joinInts(rc.PageNumbers))
		}
		sb.WriteString(" ---\n")
		sb.WriteString(rc.OriginalText)
		sb.WriteString("\n")

		for j, table := range rc.RawTables {
			if j < len(rc.TableVerdicts) && content.Excluded(rc.TableVerdicts[j]) {
				continue
			}
			sb.WriteString("\nTable:\n")
			sb.WriteString(table)
			sb.WriteString("\n")
		}

		for j, path := range rc.ImagePaths {
			if j < len(rc.ImageVerdicts) && content.Excluded(rc.ImageVerdicts[j]) {
				continue
			}
			catalog = append(catalog, path)
			verdict := ""
			if j < len(rc.ImageVerdicts) {
				verdict = rc.ImageVerdicts[j]
			}
			fmt.Fprintf(&sb, "\nImage %d: %s\n", len(catalog), verdict)
		}
		sb.WriteString("\n")
	}
	return sb.String(), catalog
}

func buildTurnPrompt(history []Message, question, docContext string, imageCount int) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("CONVERSATION SO FAR:\n")
		for _, m := range history {
			role := "User"
			if m.Role == "assistant" {
				role = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("DOCUMENT CONTEXT:\n")
	sb.WriteString(docContext)
	if imageCount == 0 {
		sb.WriteString("\nNo images are available in this context.\n")
	}
	sb.WriteString("\nQUESTION: ")
	sb.WriteString(question)
	return sb.String()
}

// resolveIndices deduplicates image references preserving first-seen
// order and drops numbers outside the catalog.
func resolveIndices(indices []int, catalogSize int) []int {
	seen := make(map[int]bool, len(indices))
	var out []int
	for _, idx := range indices {
		if idx < 1 || idx > catalogSize || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}

// splitPieces re-chunks text into fixed-size rune pieces for streaming.
func splitPieces(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
