package statsig

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// windowScores holds column-aligned outputs for a run of positions.
type windowScores struct {
	score     []float64
	pvalue    []float64
	magnitude []float64
}

func newWindowScores(n int) windowScores {
	w := windowScores{
		score:     make([]float64, n),
		pvalue:    make([]float64, n),
		magnitude: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		w.pvalue[i] = 1
		w.magnitude[i] = 1
	}
	return w
}

func (w *windowScores) extend(o windowScores) {
	w.score = append(w.score, o.score...)
	w.pvalue = append(w.pvalue, o.pvalue...)
	w.magnitude = append(w.magnitude, o.magnitude...)
}

// scoreRange scores positions [from, len(v)) of v. Position i is scored once
// nc+nt points end at i; earlier positions keep the padded values.
func scoreRange(v []float64, from, nc, nt int, corrected bool) windowScores {
	out := newWindowScores(len(v) - from)
	for i := from; i < len(v); i++ {
		if i < nc+nt-1 {
			continue
		}
		control := v[i-nt-nc+1 : i-nt+1]
		test := v[i-nt+1 : i+1]
		j := i - from
		out.score[j], out.pvalue[j], out.magnitude[j] = twoSample(control, test, corrected)
	}
	return out
}

// scoreChunked scores the same positions as scoreRange in pieces of at most
// chunk positions. Each piece carries the nc+nt-1 preceding points so every
// window sees exactly the values the single pass would.
func scoreChunked(v []float64, from, nc, nt, chunk int, corrected bool) windowScores {
	lookback := nc + nt - 1
	out := windowScores{
		score:     make([]float64, 0, len(v)-from),
		pvalue:    make([]float64, 0, len(v)-from),
		magnitude: make([]float64, 0, len(v)-from),
	}
	for start := from; start < len(v); start += chunk {
		end := min(start+chunk, len(v))
		ctxStart := max(0, start-lookback)
		out.extend(scoreRange(v[ctxStart:end], start-ctxStart, nc, nt, corrected))
	}
	return out
}

// twoSample returns the test statistic of test against control, its two-sided
// p-value and the ratio of the window means.
//
// Without correction it is Welch's t with Welch-Satterthwaite degrees of
// freedom. With correction the variances are pooled and df = nc+nt-2.
func twoSample(control, test []float64, corrected bool) (score, pvalue, magnitude float64) {
	mc, vc := meanVariance(control)
	mt, vt := meanVariance(test)
	nc, nt := float64(len(control)), float64(len(test))

	magnitude = 1
	if mc != 0 {
		magnitude = mt / mc
	}

	var se, df float64
	if corrected {
		df = nc + nt - 2
		if df <= 0 {
			return 0, 1, magnitude
		}
		pooled := ((nc-1)*vc + (nt-1)*vt) / df
		se = math.Sqrt(pooled * (1/nc + 1/nt))
	} else {
		a, b := vc/nc, vt/nt
		se = math.Sqrt(a + b)
		var denom float64
		if nc > 1 {
			denom += a * a / (nc - 1)
		}
		if nt > 1 {
			denom += b * b / (nt - 1)
		}
		if denom > 0 {
			df = (a + b) * (a + b) / denom
		}
	}
	if se == 0 || math.IsNaN(se) {
		return 0, 1, magnitude
	}

	score = (mt - mc) / se
	if df <= 0 || math.IsNaN(df) || math.IsInf(df, 0) {
		return score, 1, magnitude
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return score, 2 * t.Survival(math.Abs(score)), magnitude
}

// meanVariance returns the mean and the unbiased variance; a single point has zero variance.
func meanVariance(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanVariance(x, nil)
}
