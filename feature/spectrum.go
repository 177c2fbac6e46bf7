package feature

import "gonum.org/v1/gonum/dsp/fourier"

// spectrum computes windowed power spectra with a reusable FFT plan.
// It is not safe for concurrent use.
type spectrum struct {
	fft    *fourier.FFT
	window []float64
	buf    []float64
	coeffs []complex128
	power  []float64
}

func newSpectrum(fftSize, frameLen int) *spectrum {
	return &spectrum{
		fft:    fourier.NewFFT(fftSize),
		window: hammingWindow(frameLen),
		buf:    make([]float64, fftSize),
		coeffs: make([]complex128, fftSize/2+1),
		power:  make([]float64, fftSize/2+1),
	}
}

// compute windows and zero-pads frame, returning |X|^2/N for the positive bins.
// The result is overwritten by the next call.
func (s *spectrum) compute(frame []float64) []float64 {
	for i, v := range frame {
		s.buf[i] = v * s.window[i]
	}
	clear(s.buf[len(frame):])
	s.coeffs = s.fft.Coefficients(s.coeffs, s.buf)
	n := float64(len(s.buf))
	for i, c := range s.coeffs {
		s.power[i] = (real(c)*real(c) + imag(c)*imag(c)) / n
	}
	return s.power
}

// PowerSpectrum returns |FFT(frame)|^2/N for a frame zero-padded to fftSize, without windowing.
func PowerSpectrum(frame []float64, fftSize int) []float64 {
	buf := make([]float64, fftSize)
	copy(buf, frame)
	coeffs := fourier.NewFFT(fftSize).Coefficients(nil, buf)
	power := make([]float64, len(coeffs))
	for i, c := range coeffs {
		power[i] = (real(c)*real(c) + imag(c)*imag(c)) / float64(fftSize)
	}
	return power
}
