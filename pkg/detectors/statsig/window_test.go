package statsig

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoSample(t *testing.T) {
	control := []float64{1, 2, 3, 4}
	test := []float64{5, 6, 7, 8}

	for _, corrected := range []bool{false, true} {
		score, p, mag := twoSample(control, test, corrected)
		assert.InDelta(t, 4.381780, score, 1e-6, "corrected=%v", corrected)
		assert.Less(t, p, 0.01, "corrected=%v", corrected)
		assert.Greater(t, p, 0.0, "corrected=%v", corrected)
		assert.InDelta(t, 2.6, mag, 1e-12, "corrected=%v", corrected)
	}
}

func TestTwoSampleDegenerate(t *testing.T) {
	tests := []struct {
		name      string
		control   []float64
		test      []float64
		wantScore float64
		wantP     float64
	}{
		{"constant windows", []float64{3, 3, 3}, []float64{5, 5, 5}, 0, 1},
		{"single points", []float64{1}, []float64{2}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, corrected := range []bool{false, true} {
				score, p, _ := twoSample(tt.control, tt.test, corrected)
				assert.Equal(t, tt.wantScore, score)
				assert.Equal(t, tt.wantP, p)
			}
		})
	}
}

func TestTwoSampleZeroControlMean(t *testing.T) {
	_, _, mag := twoSample([]float64{-1, 1}, []float64{2, 3}, false)
	assert.Equal(t, 1.0, mag)
}

func TestScoreRangePadding(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	v := normals(rng, 30, 0, 1)

	ws := scoreRange(v, 0, 4, 3, false)
	require.Len(t, ws.score, 30)
	for i := 0; i < 6; i++ {
		assert.Equal(t, 0.0, ws.score[i])
		assert.Equal(t, 1.0, ws.pvalue[i])
		assert.Equal(t, 1.0, ws.magnitude[i])
	}
	assert.NotEqual(t, 0.0, ws.score[6])

	tail := scoreRange(v, 20, 4, 3, false)
	assert.Equal(t, ws.score[20:], tail.score)
}

func TestScoreChunkedMatchesSinglePass(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	v := normals(rng, 137, 10, 3)

	for _, corrected := range []bool{false, true} {
		for _, from := range []int{0, 5, 40} {
			want := scoreRange(v, from, 9, 4, corrected)
			for _, chunk := range []int{1, 2, 7, 50, 136, 500} {
				got := scoreChunked(v, from, 9, 4, chunk, corrected)
				assert.Equal(t, want, got, "corrected=%v from=%d chunk=%d", corrected, from, chunk)
			}
		}
	}
}

func BenchmarkScoreRange(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	v := normals(rng, 10000, 0, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scoreRange(v, 0, 60, 15, true)
	}
}
