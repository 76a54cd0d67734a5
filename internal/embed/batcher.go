package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"foldermcp/internal/model"
)

const (
	DefaultBatchSize     = 32
	DefaultFlushInterval = 100 * time.Millisecond

	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = 10 * time.Second
	retryMaxAttempts     = 3
)

type itemResult struct {
	vector []float32
	err    error
}

type item struct {
	text  string
	reply chan itemResult
}

// Batcher coalesces embed requests from concurrent callers into provider
// batches. A batch is dispatched when it reaches the batch size or when the
// flush interval elapses with requests pending. Transient provider failures
// are retried with exponential backoff; permanent ones fail the whole batch.
type Batcher struct {
	provider  model.EmbeddingProvider
	batchSize int
	flush     time.Duration
	requests  chan item
}

func NewBatcher(provider model.EmbeddingProvider, batchSize int, flush time.Duration) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flush <= 0 {
		flush = DefaultFlushInterval
	}
	return &Batcher{
		provider:  provider,
		batchSize: batchSize,
		flush:     flush,
		requests:  make(chan item, batchSize*4),
	}
}

// Run owns the batching loop until ctx is cancelled. Pending requests are
// failed with the context error on shutdown.
func (b *Batcher) Run(ctx context.Context) {
	var pending []item
	timer := time.NewTimer(b.flush)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			fail(pending, ctx.Err())
			return
		case it := <-b.requests:
			if len(pending) == 0 {
				timer.Reset(b.flush)
			}
			pending = append(pending, it)
			if len(pending) >= b.batchSize {
				stopTimer(timer)
				b.dispatch(ctx, pending)
				pending = nil
			}
		case <-timer.C:
			if len(pending) > 0 {
				b.dispatch(ctx, pending)
				pending = nil
			}
		}
	}
}

// Embed submits texts and waits for their vectors, preserving order.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	replies := make([]chan itemResult, len(texts))
	for i, text := range texts {
		replies[i] = make(chan itemResult, 1)
		select {
		case b.requests <- item{text: text, reply: replies[i]}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([][]float32, len(texts))
	for i, reply := range replies {
		select {
		case res := <-reply:
			if res.err != nil {
				return nil, res.err
			}
			out[i] = res.vector
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (b *Batcher) dispatch(ctx context.Context, batch []item) {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.text
	}

	vectors, err := b.embedWithRetry(ctx, texts)
	if err != nil {
		fail(batch, err)
		return
	}
	if len(vectors) != len(batch) {
		fail(batch, fmt.Errorf("%w: provider returned %d vectors for %d texts",
			model.ErrInternal, len(vectors), len(batch)))
		return
	}
	for i, it := range batch {
		it.reply <- itemResult{vector: vectors[i]}
	}
}

func (b *Batcher) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval

	var vectors [][]float32
	operation := func() error {
		var err error
		vectors, err = b.provider.Embed(ctx, texts)
		if err != nil && !model.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, retryMaxAttempts), ctx))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func fail(batch []item, err error) {
	for _, it := range batch {
		it.reply <- itemResult{err: err}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
