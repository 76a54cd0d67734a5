package embed

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"foldermcp/internal/model"
)

func TestHashProviderDeterministic(t *testing.T) {
	p := NewHashProvider()
	require.Equal(t, "builtin:hash-v1", p.Name())
	require.Equal(t, 384, p.Dimension())

	ctx := context.Background()
	first, err := p.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)
	second, err := p.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first[0], 384)
}

func TestHashProviderUnitNorm(t *testing.T) {
	vecs, err := NewHashProvider().Embed(context.Background(), []string{"norm me"})
	require.NoError(t, err)

	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, sum, 1e-3)
}

func TestHashProviderDistinguishesTexts(t *testing.T) {
	vecs, err := NewHashProvider().Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.NotEqual(t, vecs[0], vecs[1])
}

func TestHashProviderNormalizesInput(t *testing.T) {
	vecs, err := NewHashProvider().Embed(context.Background(), []string{"  spaced  ", "spaced"})
	require.NoError(t, err)
	require.Equal(t, vecs[0], vecs[1])
}

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider("", "")
	require.NoError(t, err)
	require.Equal(t, "builtin:hash-v1", p.Name())

	_, err = NewProvider("cloudy", "giant-13b")
	require.ErrorIs(t, err, model.ErrModelUnavailable)

	_, err = NewProvider("builtin", "giant-13b")
	require.ErrorIs(t, err, model.ErrModelUnavailable)
}

// recordingProvider wraps the hash provider and records batch sizes, with an
// optional number of leading transient failures.
type recordingProvider struct {
	mu         sync.Mutex
	batchSizes []int
	failFirst  int
	permanent  error
}

func (*recordingProvider) Name() string   { return "test:recording" }
func (*recordingProvider) Dimension() int { return hashDimension }

func (r *recordingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.batchSizes = append(r.batchSizes, len(texts))
	fail := r.failFirst > 0
	if fail {
		r.failFirst--
	}
	perm := r.permanent
	r.mu.Unlock()

	if perm != nil {
		return nil, perm
	}
	if fail {
		return nil, &model.ProviderError{Code: "UNAVAILABLE", Message: "try again", Retryable: true}
	}
	return NewHashProvider().Embed(ctx, texts)
}

func (r *recordingProvider) calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.batchSizes...)
}

func startBatcher(t *testing.T, b *Batcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestBatcherGroupsRequests(t *testing.T) {
	provider := &recordingProvider{}
	b := NewBatcher(provider, 2, 10*time.Millisecond)
	startBatcher(t, b)

	vecs, err := b.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		require.Len(t, v, hashDimension)
	}
	for _, size := range provider.calls() {
		require.LessOrEqual(t, size, 2)
	}
}

func TestBatcherRetriesTransientFailure(t *testing.T) {
	provider := &recordingProvider{failFirst: 1}
	b := NewBatcher(provider, 4, 5*time.Millisecond)
	startBatcher(t, b)

	vecs, err := b.Embed(context.Background(), []string{"retry me"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.GreaterOrEqual(t, len(provider.calls()), 2)
}

func TestBatcherPermanentFailureNotRetried(t *testing.T) {
	provider := &recordingProvider{
		permanent: &model.ProviderError{Code: "BAD_MODEL", Message: "no", Retryable: false},
	}
	b := NewBatcher(provider, 4, 5*time.Millisecond)
	startBatcher(t, b)

	_, err := b.Embed(context.Background(), []string{"doomed"})
	require.Error(t, err)
	var pe *model.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "BAD_MODEL", pe.Code)
	require.Len(t, provider.calls(), 1)
}

func TestBatcherOrderPreserved(t *testing.T) {
	provider := &recordingProvider{}
	b := NewBatcher(provider, 3, 5*time.Millisecond)
	startBatcher(t, b)

	texts := []string{"one", "two", "three", "four"}
	vecs, err := b.Embed(context.Background(), texts)
	require.NoError(t, err)

	direct, err := NewHashProvider().Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Equal(t, direct, vecs)
}

func TestHashVectorNoNaN(t *testing.T) {
	for _, v := range hashVector("") {
		require.False(t, math.IsNaN(float64(v)))
	}
}

func cosineSim(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashProviderSharedVocabularyScoresHigher(t *testing.T) {
	vecs, err := NewHashProvider().Embed(context.Background(), []string{
		"hello world",
		"hello there",
		"quarterly revenue figures",
	})
	require.NoError(t, err)

	overlap := cosineSim(vecs[0], vecs[1])
	unrelated := cosineSim(vecs[0], vecs[2])
	// one of two tokens shared reads as solidly positive similarity
	require.Greater(t, overlap, 0.4)
	require.Greater(t, overlap, unrelated)
}

func TestHashProviderCaseInsensitive(t *testing.T) {
	vecs, err := NewHashProvider().Embed(context.Background(), []string{"Hello World", "hello world"})
	require.NoError(t, err)
	require.Equal(t, vecs[0], vecs[1])
}
