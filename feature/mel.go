package feature

import "math"

// melFilter stores the non-zero span of one triangular filter.
type melFilter struct {
	start  int
	coeffs []float64
}

// MelFilterbank is a bank of triangular filters spaced evenly on the mel scale.
type MelFilterbank struct {
	filters []melFilter
	nBins   int
}

// NewMelFilterbank builds numFilters filters over [lowFreq, highFreq].
// A non-positive highFreq is taken relative to the Nyquist frequency.
func NewMelFilterbank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) *MelFilterbank {
	if highFreq <= 0 {
		highFreq += float64(sampleRate) / 2
	}
	nBins := fftSize/2 + 1
	lowMel, highMel := hzToMel(lowFreq), hzToMel(highFreq)
	step := (highMel - lowMel) / float64(numFilters+1)

	bins := make([]int, numFilters+2)
	for i := range bins {
		hz := melToHz(lowMel + float64(i)*step)
		bins[i] = int(math.Floor(hz * float64(fftSize+1) / float64(sampleRate)))
	}

	fb := &MelFilterbank{filters: make([]melFilter, numFilters), nBins: nBins}
	for i := range fb.filters {
		left, center, right := bins[i], bins[i+1], bins[i+2]
		right = min(right, nBins-1)
		if right < left {
			continue
		}
		coeffs := make([]float64, right-left+1)
		for j := left; j <= right; j++ {
			switch {
			case j < center && center != left:
				coeffs[j-left] = float64(j-left) / float64(center-left)
			case j >= center && right != center:
				coeffs[j-left] = float64(right-j) / float64(right-center)
			}
		}
		fb.filters[i] = melFilter{start: left, coeffs: coeffs}
	}
	return fb
}

// NumFilters returns the number of filters.
func (fb *MelFilterbank) NumFilters() int { return len(fb.filters) }

// Apply returns log mel energies of a power spectrum.
func (fb *MelFilterbank) Apply(power []float64) []float64 {
	out := make([]float64, len(fb.filters))
	fb.applyInto(power, out)
	return out
}

func (fb *MelFilterbank) applyInto(power, dst []float64) {
	for i, f := range fb.filters {
		sum := 0.0
		for j, c := range f.coeffs {
			if k := f.start + j; k < len(power) {
				sum += power[k] * c
			}
		}
		dst[i] = math.Log(math.Max(sum, 1e-30))
	}
}

// dctTable is a precomputed type-II DCT.
type dctTable [][]float64 // [numCepstra][numFilters]

func newDCTTable(numCepstra, numFilters int) dctTable {
	t := make(dctTable, numCepstra)
	for k := range t {
		t[k] = make([]float64, numFilters)
		for j := range t[k] {
			t[k][j] = math.Cos(math.Pi * float64(k) * (float64(j) + 0.5) / float64(numFilters))
		}
	}
	return t
}

func (t dctTable) applyInto(logMel, dst []float64) {
	for k, row := range t {
		sum := 0.0
		for j, c := range row {
			sum += logMel[j] * c
		}
		dst[k] = sum
	}
}

// DCT applies a type-II DCT and keeps numCepstra coefficients.
func DCT(logMel []float64, numCepstra int) []float64 {
	out := make([]float64, numCepstra)
	newDCTTable(numCepstra, len(logMel)).applyInto(logMel, out)
	return out
}

// lifter returns sinusoidal liftering weights, or nil when l is 0.
func lifter(numCepstra, l int) []float64 {
	if l <= 0 {
		return nil
	}
	w := make([]float64, numCepstra)
	for i := range w {
		w[i] = 1 + float64(l)/2*math.Sin(math.Pi*float64(i)/float64(l))
	}
	return w
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }

func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }
