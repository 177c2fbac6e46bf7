// Package audio reads and writes mono 16-bit PCM WAV files and converts
// between PCM16 and the float32 samples the decoder consumes.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAVHeader holds the parsed RIFF/WAV header fields.
type WAVHeader struct {
	SampleRate    int
	BitsPerSample int
	NumChannels   int
	NumSamples    int
}

// Duration returns the length of the audio in seconds.
func (h WAVHeader) Duration() float64 {
	if h.SampleRate == 0 {
		return 0
	}
	return float64(h.NumSamples) / float64(h.SampleRate)
}

type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// ReadWAV reads a 16-bit PCM mono WAV file at any sample rate and returns
// samples normalised to [-1.0, 1.0).
func ReadWAV(r io.ReadSeeker) ([]float32, WAVHeader, error) {
	var header WAVHeader

	var riff struct {
		ID   [4]byte
		Size uint32
		Wave [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, header, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff.ID[:]) != "RIFF" {
		return nil, header, errors.New("not a RIFF file")
	}
	if string(riff.Wave[:]) != "WAVE" {
		return nil, header, errors.New("not a WAVE file")
	}

	var fmtFound bool
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, header, fmt.Errorf("read chunk header: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			if err := readFmtChunk(r, chunk.Size, &header); err != nil {
				return nil, header, err
			}
			fmtFound = true

		case "data":
			if !fmtFound {
				return nil, header, errors.New("data chunk before fmt chunk")
			}
			samples, err := readDataChunk(r, chunk.Size)
			if err != nil {
				return nil, header, err
			}
			header.NumSamples = len(samples)
			return samples, header, nil

		default:
			// Chunks are word aligned.
			skip := int64(chunk.Size) + int64(chunk.Size%2)
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, header, fmt.Errorf("skip chunk %q: %w", chunk.ID, err)
			}
		}
	}

	if !fmtFound {
		return nil, header, errors.New("missing fmt chunk")
	}
	return nil, header, errors.New("missing data chunk")
}

// ReadWAVFile is a convenience wrapper that opens a file path.
func ReadWAVFile(path string) ([]float32, WAVHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WAVHeader{}, err
	}
	defer f.Close()
	return ReadWAV(f)
}

func readFmtChunk(r io.ReadSeeker, size uint32, h *WAVHeader) error {
	const fmtSize = 16
	if size < fmtSize {
		return fmt.Errorf("fmt chunk too short: %d bytes", size)
	}
	var c fmtChunk
	if err := binary.Read(r, binary.LittleEndian, &c); err != nil {
		return fmt.Errorf("read fmt chunk: %w", err)
	}
	h.SampleRate = int(c.SampleRate)
	h.NumChannels = int(c.NumChannels)
	h.BitsPerSample = int(c.BitsPerSample)

	if c.AudioFormat != 1 {
		return fmt.Errorf("unsupported audio format %d (only PCM=1 supported)", c.AudioFormat)
	}
	if c.NumChannels != 1 {
		return fmt.Errorf("unsupported channel count %d (only mono supported)", c.NumChannels)
	}
	if c.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bits per sample %d (only 16 supported)", c.BitsPerSample)
	}
	if c.SampleRate == 0 {
		return errors.New("sample rate is zero")
	}

	if extra := int64(size-fmtSize) + int64(size%2); extra > 0 {
		if _, err := r.Seek(extra, io.SeekCurrent); err != nil {
			return fmt.Errorf("skip extra fmt bytes: %w", err)
		}
	}
	return nil
}

func readDataChunk(r io.Reader, size uint32) ([]float32, error) {
	raw := make([]int16, size/2)
	if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("read PCM data: %w", err)
	}
	return PCM16ToFloat32(nil, raw), nil
}
