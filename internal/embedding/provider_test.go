package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/cadence/internal/embedding/embeddingtest"
)

// recordingProvider records the size of every batch it receives.
type recordingProvider struct {
	batches []int
	dims    func(call int) int
	err     error
	failAt  int
}

func (r *recordingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	r.batches = append(r.batches, len(texts))
	call := len(r.batches)
	if r.err != nil && call == r.failAt {
		return nil, r.err
	}
	dim := 3
	if r.dims != nil {
		dim = r.dims(call)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
	}
	return out, nil
}

type BatchedSuite struct {
	suite.Suite
	pauses []time.Duration
}

func TestBatchedSuite(t *testing.T) {
	suite.Run(t, new(BatchedSuite))
}

func (s *BatchedSuite) SetupTest() {
	s.pauses = nil
}

func (s *BatchedSuite) sleep(_ context.Context, d time.Duration) error {
	s.pauses = append(s.pauses, d)
	return nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("title-%d", i)
	}
	return out
}

func (s *BatchedSuite) TestSplitsIntoBatchesOfTen() {
	inner := &recordingProvider{}
	b := NewBatched(inner, WithSleep(s.sleep))

	vecs, err := b.Embed(context.Background(), texts(25))
	s.Require().NoError(err)
	s.Len(vecs, 25)
	s.Equal([]int{10, 10, 5}, inner.batches)
	s.Equal([]time.Duration{DefaultBatchPause, DefaultBatchPause}, s.pauses)
}

func (s *BatchedSuite) TestSingleBatchDoesNotPause() {
	inner := &recordingProvider{}
	b := NewBatched(inner, WithSleep(s.sleep))

	_, err := b.Embed(context.Background(), texts(10))
	s.Require().NoError(err)
	s.Equal([]int{10}, inner.batches)
	s.Empty(s.pauses)
}

func (s *BatchedSuite) TestEmptyInputSkipsUpstream() {
	inner := &recordingProvider{}
	b := NewBatched(inner, WithSleep(s.sleep))

	vecs, err := b.Embed(context.Background(), nil)
	s.Require().NoError(err)
	s.Empty(vecs)
	s.Empty(inner.batches)
}

func (s *BatchedSuite) TestFailureAbortsWholeCall() {
	boom := errors.New("rate limited")
	inner := &recordingProvider{err: boom, failAt: 2}
	b := NewBatched(inner, WithSleep(s.sleep))

	vecs, err := b.Embed(context.Background(), texts(30))
	s.Nil(vecs)
	s.ErrorIs(err, boom)
	s.Equal([]int{10, 10}, inner.batches, "no batches are attempted after a failure")
}

func (s *BatchedSuite) TestDimensionMismatchIsAnError() {
	inner := &recordingProvider{dims: func(call int) int { return 2 + call }}
	b := NewBatched(inner, WithBatchSize(2), WithSleep(s.sleep))

	_, err := b.Embed(context.Background(), texts(4))
	s.ErrorIs(err, ErrDimensionMismatch)
}

func (s *BatchedSuite) TestPreservesOrder() {
	fake := embeddingtest.New(4)
	for i, t := range texts(12) {
		fake.Set(t, embeddingtest.Unit(4, i%4))
	}
	b := NewBatched(fake, WithBatchSize(5), WithSleep(s.sleep))

	vecs, err := b.Embed(context.Background(), texts(12))
	s.Require().NoError(err)
	for i, v := range vecs {
		s.Equal(embeddingtest.Unit(4, i%4), v, "vector %d", i)
	}
	s.Equal(3, fake.Calls())
}

func TestSleepContextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTruncator(t *testing.T) {
	tr, err := NewTruncator(4)
	require.NoError(t, err)

	short := "Gym"
	assert.Equal(t, short, tr.Truncate(short))

	long := "Weekly planning session with the whole product and design team"
	cut := tr.Truncate(long)
	assert.LessOrEqual(t, tr.Count(cut), 4)
	assert.True(t, len(cut) < len(long))
	assert.Equal(t, long[:len(cut)], cut)

	var disabled *Truncator
	assert.Equal(t, long, disabled.Truncate(long))
}

func TestTruncatorKeepsValidUTF8(t *testing.T) {
	text := "🎉🎂 週次ミーティング 🏋️‍♀️ Ünïcödé"
	for n := 1; n <= 12; n++ {
		tr, err := NewTruncator(n)
		require.NoError(t, err)

		cut := tr.Truncate(text)
		assert.True(t, utf8.ValidString(cut), "max %d tokens: %q", n, cut)
		assert.True(t, strings.HasPrefix(text, cut), "max %d tokens: %q", n, cut)
	}
}
