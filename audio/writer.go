package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const wavHeaderSize = 44

// WAVWriter streams mono 16-bit PCM to a WAV file. The header is written
// with a zero data size up front and patched by FlushHeader and Close.
type WAVWriter struct {
	mu         sync.Mutex
	w          io.WriteSeeker
	closer     io.Closer
	sampleRate int
	numSamples int64
	closed     bool
}

// NewWAVWriter writes a placeholder header to w. Close does not close w.
func NewWAVWriter(w io.WriteSeeker, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	ww := &WAVWriter{w: w, sampleRate: sampleRate}
	if err := ww.writeHeader(); err != nil {
		return nil, err
	}
	return ww, nil
}

// CreateWAV creates the file at path; Close also closes the file.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create WAV file: %w", err)
	}
	w, err := NewWAVWriter(f, sampleRate)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

func (w *WAVWriter) writeHeader() error {
	dataSize := uint32(w.numSamples * 2)
	hdr := struct {
		RIFF     [4]byte
		Size     uint32
		WAVE     [4]byte
		FmtID    [4]byte
		FmtSize  uint32
		Fmt      fmtChunk
		DataID   [4]byte
		DataSize uint32
	}{
		RIFF:    [4]byte{'R', 'I', 'F', 'F'},
		Size:    wavHeaderSize - 8 + dataSize,
		WAVE:    [4]byte{'W', 'A', 'V', 'E'},
		FmtID:   [4]byte{'f', 'm', 't', ' '},
		FmtSize: 16,
		Fmt: fmtChunk{
			AudioFormat:   1,
			NumChannels:   1,
			SampleRate:    uint32(w.sampleRate),
			ByteRate:      uint32(w.sampleRate * 2),
			BlockAlign:    2,
			BitsPerSample: 16,
		},
		DataID:   [4]byte{'d', 'a', 't', 'a'},
		DataSize: dataSize,
	}
	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek WAV header: %w", err)
	}
	if err := binary.Write(w.w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write WAV header: %w", err)
	}
	return nil
}

// WriteInt16 appends raw PCM16 samples.
func (w *WAVWriter) WriteInt16(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("write to closed WAV writer")
	}
	if err := binary.Write(w.w, binary.LittleEndian, samples); err != nil {
		return fmt.Errorf("write PCM data: %w", err)
	}
	w.numSamples += int64(len(samples))
	return nil
}

// Write appends normalised samples, clamped to the PCM16 range.
func (w *WAVWriter) Write(samples []float32) error {
	return w.WriteInt16(Float32ToPCM16(samples))
}

// SamplesWritten returns the number of samples written so far.
func (w *WAVWriter) SamplesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.numSamples
}

// FlushHeader patches the header with the current size and returns to the end.
func (w *WAVWriter) FlushHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeHeader(); err != nil {
		return err
	}
	_, err := w.w.Seek(0, io.SeekEnd)
	return err
}

// Close patches the header. It is safe to call more than once.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.writeHeader()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	return err
}
