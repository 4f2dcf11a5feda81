package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angple/kb-engine/internal/metrics"
	pkglogger "github.com/angple/kb-engine/pkg/logger"
)

// ErrIndexerStopped is returned for jobs submitted after Stop
var ErrIndexerStopped = errors.New("indexer stopped")

// Projector rebuilds the index entry of one article from the primary store
type Projector interface {
	Reindex(ctx context.Context, tenantID, articleID uint64) error
}

// IndexerConfig worker pool settings
type IndexerConfig struct {
	Workers      int
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Ticket resolves when a queued re-index job has been applied (or given up)
type Ticket struct {
	seq  uint64
	done chan struct{}
	err  error
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

func (t *Ticket) resolve(err error) {
	t.err = err
	close(t.done)
}

func (t *Ticket) resolved() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the job finished or ctx is done
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type indexJob struct {
	tenantID  uint64
	articleID uint64
	ticket    *Ticket
}

type shard struct {
	mu   sync.Mutex
	next uint64
	jobs chan indexJob
}

// Indexer applies re-index jobs asynchronously. Jobs are sharded by article id
// onto single-goroutine queues, so jobs for one article run in submit order.
type Indexer struct {
	projector Projector
	cfg       IndexerConfig
	shards    []*shard

	closeMu sync.RWMutex
	closed  bool

	mu     sync.Mutex
	latest map[uint64]*Ticket

	pending sync.WaitGroup
	wg      sync.WaitGroup
	stop    chan struct{}
}

// NewIndexer creates an indexer; call Start before submitting jobs
func NewIndexer(projector Projector, cfg IndexerConfig) *Indexer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	ix := &Indexer{
		projector: projector,
		cfg:       cfg,
		shards:    make([]*shard, cfg.Workers),
		latest:    make(map[uint64]*Ticket),
		stop:      make(chan struct{}),
	}
	for i := range ix.shards {
		ix.shards[i] = &shard{jobs: make(chan indexJob, cfg.QueueSize)}
	}
	return ix
}

// Start launches one worker per shard
func (ix *Indexer) Start() {
	for _, sh := range ix.shards {
		ix.wg.Add(1)
		go ix.run(sh.jobs)
	}
	pkglogger.GetLogger().Info().Int("workers", len(ix.shards)).Msg("indexer started")
}

// Stop finishes queued jobs and stops the workers
func (ix *Indexer) Stop() {
	ix.closeMu.Lock()
	if ix.closed {
		ix.closeMu.Unlock()
		return
	}
	ix.closed = true
	for _, sh := range ix.shards {
		close(sh.jobs)
	}
	close(ix.stop)
	ix.closeMu.Unlock()

	ix.wg.Wait()
	pkglogger.GetLogger().Info().Msg("indexer stopped")
}

// Enqueue submits a re-index of articleID. Call after the write committed.
// Blocks while the article's shard queue is full.
func (ix *Indexer) Enqueue(tenantID, articleID uint64) *Ticket {
	t := newTicket()

	ix.closeMu.RLock()
	defer ix.closeMu.RUnlock()
	if ix.closed {
		metrics.IndexJobs.WithLabelValues("dropped").Inc()
		t.resolve(ErrIndexerStopped)
		return t
	}

	ix.pending.Add(1)
	metrics.IndexQueueDepth.Inc()

	sh := ix.shards[articleID%uint64(len(ix.shards))]
	sh.mu.Lock()
	sh.next++
	t.seq = sh.next
	sh.jobs <- indexJob{tenantID: tenantID, articleID: articleID, ticket: t}
	sh.mu.Unlock()

	ix.mu.Lock()
	if cur, ok := ix.latest[articleID]; (!ok || cur.seq < t.seq) && !t.resolved() {
		ix.latest[articleID] = t
	}
	ix.mu.Unlock()
	return t
}

// AwaitArticle waits until every job submitted so far for articleID is applied
func (ix *Indexer) AwaitArticle(ctx context.Context, articleID uint64) error {
	ix.mu.Lock()
	t, ok := ix.latest[articleID]
	ix.mu.Unlock()
	if !ok {
		return nil
	}
	return t.Wait(ctx)
}

// Drain waits until the queue is empty
func (ix *Indexer) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ix.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ix *Indexer) run(jobs <-chan indexJob) {
	defer ix.wg.Done()
	for job := range jobs {
		err := ix.apply(job)
		job.ticket.resolve(err)

		ix.mu.Lock()
		if ix.latest[job.articleID] == job.ticket {
			delete(ix.latest, job.articleID)
		}
		ix.mu.Unlock()

		metrics.IndexQueueDepth.Dec()
		ix.pending.Done()
	}
}

// apply runs one job with bounded retries. Retrying in place keeps later jobs
// for the same article behind this one.
func (ix *Indexer) apply(job indexJob) error {
	log := pkglogger.WithArticle(job.tenantID, job.articleID)
	start := time.Now()
	defer func() { metrics.IndexJobDuration.Observe(time.Since(start).Seconds()) }()

	var err error
	for attempt := 0; attempt <= ix.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IndexJobs.WithLabelValues("retry").Inc()
			select {
			case <-time.After(ix.cfg.RetryBackoff * time.Duration(attempt)):
			case <-ix.stop:
			}
		}
		if err = ix.projector.Reindex(context.Background(), job.tenantID, job.articleID); err == nil {
			metrics.IndexJobs.WithLabelValues("ok").Inc()
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("reindex failed")
	}
	metrics.IndexJobs.WithLabelValues("failed").Inc()
	log.Error().Err(err).Msg("reindex gave up")
	return err
}
