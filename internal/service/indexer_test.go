package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	tenantID  uint64
	articleID uint64
}

// fakeProjector records calls and fails the first failures[id] attempts
type fakeProjector struct {
	mu       sync.Mutex
	calls    []call
	failures map[uint64]int
	delay    time.Duration
}

func (p *fakeProjector) Reindex(_ context.Context, tenantID, articleID uint64) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{tenantID, articleID})
	if p.failures[articleID] > 0 {
		p.failures[articleID]--
		return errors.New("index unavailable")
	}
	return nil
}

func (p *fakeProjector) recorded() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]call(nil), p.calls...)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestIndexer_PerArticleOrder(t *testing.T) {
	p := &fakeProjector{delay: time.Millisecond}
	ix := NewIndexer(p, IndexerConfig{Workers: 3, QueueSize: 32})
	ix.Start()
	defer ix.Stop()

	for i := 0; i < 5; i++ {
		for id := uint64(1); id <= 4; id++ {
			ix.Enqueue(id*10, id)
		}
	}
	require.NoError(t, ix.Drain(waitCtx(t)))

	perArticle := make(map[uint64]int)
	for _, c := range p.recorded() {
		assert.Equal(t, c.articleID*10, c.tenantID)
		perArticle[c.articleID]++
	}
	assert.Len(t, p.recorded(), 20)
	for id := uint64(1); id <= 4; id++ {
		assert.Equal(t, 5, perArticle[id])
	}
}

func TestIndexer_AwaitArticle(t *testing.T) {
	p := &fakeProjector{delay: 5 * time.Millisecond}
	ix := NewIndexer(p, IndexerConfig{Workers: 1, QueueSize: 8})
	ix.Start()
	defer ix.Stop()

	require.NoError(t, ix.AwaitArticle(waitCtx(t), 99), "nothing queued")

	ix.Enqueue(1, 7)
	ix.Enqueue(1, 8)
	last := ix.Enqueue(1, 7)
	require.NoError(t, ix.AwaitArticle(waitCtx(t), 7))
	assert.True(t, last.resolved())

	var sevens int
	for _, c := range p.recorded() {
		if c.articleID == 7 {
			sevens++
		}
	}
	assert.Equal(t, 2, sevens)
}

func TestIndexer_Retry(t *testing.T) {
	p := &fakeProjector{failures: map[uint64]int{1: 2, 2: 5}}
	ix := NewIndexer(p, IndexerConfig{Workers: 2, QueueSize: 8, MaxRetries: 2, RetryBackoff: time.Millisecond})
	ix.Start()
	defer ix.Stop()

	ok := ix.Enqueue(1, 1)
	failed := ix.Enqueue(1, 2)

	assert.NoError(t, ok.Wait(waitCtx(t)))
	err := failed.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")

	var attempts = map[uint64]int{}
	for _, c := range p.recorded() {
		attempts[c.articleID]++
	}
	assert.Equal(t, 3, attempts[1])
	assert.Equal(t, 3, attempts[2])
}

func TestIndexer_StopFinishesQueueThenRejects(t *testing.T) {
	p := &fakeProjector{delay: time.Millisecond}
	ix := NewIndexer(p, IndexerConfig{Workers: 1, QueueSize: 16})
	ix.Start()

	tickets := make([]*Ticket, 0, 5)
	for i := uint64(1); i <= 5; i++ {
		tickets = append(tickets, ix.Enqueue(1, i))
	}
	ix.Stop()
	ix.Stop()

	for _, tk := range tickets {
		assert.True(t, tk.resolved())
	}
	assert.Len(t, p.recorded(), 5)

	late := ix.Enqueue(1, 6)
	assert.ErrorIs(t, late.Wait(waitCtx(t)), ErrIndexerStopped)
}
