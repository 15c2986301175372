package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/raglab/docuchat/internal/content"
	"github.com/raglab/docuchat/internal/enrich"
	"github.com/raglab/docuchat/internal/imagestore"
	"github.com/raglab/docuchat/internal/parser"
)

// ChunkStore is the persistence half of the pipeline.
// *vectorstore.Store satisfies it.
type ChunkStore interface {
	Build(ctx context.Context, documentID string, chunks []content.EnrichedChunk) (string, error)
}

// Worker processes a single document job end to end.
type Worker struct {
	remote    *parser.Remote // nil disables remote partitioning
	parseOpts parser.Options
	enricher  *enrich.Enricher
	store     ChunkStore
	images    *imagestore.Store
	hashes    *hashIndex
	log       *slog.Logger
}

func NewWorker(remote *parser.Remote, parseOpts parser.Options, enricher *enrich.Enricher, store ChunkStore, images *imagestore.Store, hashes *hashIndex, log *slog.Logger) *Worker {
	return &Worker{
		remote:    remote,
		parseOpts: parseOpts,
		enricher:  enricher,
		store:     store,
		images:    images,
		hashes:    hashes,
		log:       log,
	}
}

// Process runs the full pipeline for a job: parse, enrich, store.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "collection", job.Collection)
	defer job.releaseFileData()

	// Phase 1: Parse.
	job.SetStatus(StatusParsing, "parsing document")
	p, err := parser.ForFile(job.Filename, w.remote)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	data := job.FileData()
	hash := ContentHashHex(data)
	job.SetContentHash(hash)
	if w.hashes.seen(job.Collection, hash) {
		log.Info("unchanged document, skipping rebuild")
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	chunks, err := p.Partition(bytes.NewReader(data), job.Filename, w.parseOpts)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	job.SetTotalChunks(len(chunks))
	log.Info("document parsed", "chunks", len(chunks))

	if ctx.Err() != nil {
		job.AddError(ctx.Err().Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	// Phase 2: Enrich. Extracted images restart from a clean slate so
	// sequential numbering matches the new run.
	if err := w.images.Reset(); err != nil {
		log.Error("image reset failed", "error", err)
		job.AddError(fmt.Sprintf("image reset: %s", err))
		job.SetStatus(StatusFailed, "enriching")
		return
	}
	job.SetStatus(StatusEnriching, "generating searchable descriptions")
	enriched := w.enricher.EnrichBatch(ctx, chunks, func(int) {
		job.IncrChunksEnriched()
	})

	if ctx.Err() != nil {
		job.AddError(ctx.Err().Error())
		job.SetStatus(StatusFailed, "enriching")
		return
	}

	// Phase 3: Store.
	job.SetStatus(StatusStoring, "building vector index")
	name, err := w.store.Build(ctx, job.Collection, enriched)
	if err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	job.SetChunksStored(len(enriched))
	w.hashes.record(name, hash)

	log.Info("document processed", "chunks", len(enriched))
	job.SetStatus(StatusCompleted, "done")
}
