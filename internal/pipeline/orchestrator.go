package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raglab/docuchat/internal/config"
	"github.com/raglab/docuchat/internal/enrich"
	"github.com/raglab/docuchat/internal/imagestore"
	"github.com/raglab/docuchat/internal/parser"
)

// hashIndex remembers the content hash of the last successful build per
// collection, so re-uploading an unchanged file skips the rebuild.
type hashIndex struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newHashIndex() *hashIndex {
	return &hashIndex{hashes: make(map[string]string)}
}

func (h *hashIndex) seen(collection, hash string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hashes[collection] == hash
}

func (h *hashIndex) record(collection, hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashes[collection] = hash
}

// Forget drops the recorded hash, forcing the next upload to rebuild.
// Called when a document's collection is deleted.
func (h *hashIndex) Forget(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hashes, collection)
}

// Orchestrator owns the job queue and worker pool.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	remote   *parser.Remote
	enricher *enrich.Enricher
	store    ChunkStore
	images   *imagestore.Store
	hashes   *hashIndex
	log      *slog.Logger
	cfg      config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires the pipeline. remote may be nil when no
// partition service is configured.
func NewOrchestrator(cfg config.Config, remote *parser.Remote, enricher *enrich.Enricher, store ChunkStore, images *imagestore.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		remote:   remote,
		enricher: enricher,
		store:    store,
		images:   images,
		hashes:   newHashIndex(),
		log:      log,
		cfg:      cfg,
	}
}

// Start launches worker goroutines and the job store janitor.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	parseOpts := parser.Options{
		MaxCharacters:          o.cfg.MaxCharacters,
		NewAfterNChars:         o.cfg.NewAfterNChars,
		CombineTextUnderNChars: o.cfg.CombineTextUnderNChars,
		ExtractImages:          o.cfg.ExtractImages,
		ExtractTables:          o.cfg.ExtractTables,
		Languages:              o.cfg.Languages,
	}

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.remote, parseOpts, o.enricher, o.store, o.images, o.hashes, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID, nil when unknown or expired.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns the current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// ForgetDocument clears dedup state for a deleted collection.
func (o *Orchestrator) ForgetDocument(collection string) {
	o.hashes.Forget(collection)
}
