package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Format is what the fmt chunk of a WAV file declares.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// IsPCM16 reports whether f is 16-bit integer PCM with the given layout.
func (f Format) IsPCM16(sampleRate, channels int) bool {
	return f.AudioFormat == pcmFormat &&
		f.BitsPerSample == pcmBits &&
		int(f.SampleRate) == sampleRate &&
		int(f.Channels) == channels
}

const (
	pcmFormat  = 1
	pcmBits    = 16
	fmtSize    = 16
	headerSize = 44
)

// EncodeWAV encodes mono PCM-16 samples into a WAV file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + 2*len(samples))
	if err := writePCM16(&buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writePCM16 streams a mono RIFF/WAVE file: header fields in order, then the
// sample data.
func writePCM16(w io.Writer, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	const blockAlign = pcmBits / 8
	data := uint32(len(samples) * blockAlign)

	fields := []any{
		[]byte("RIFF"), uint32(headerSize - 8 + data), []byte("WAVE"),
		[]byte("fmt "), uint32(fmtSize), uint16(pcmFormat), uint16(1),
		uint32(sampleRate), uint32(sampleRate * blockAlign), uint16(blockAlign), uint16(pcmBits),
		[]byte("data"), data,
		samples,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("write wav: %w", err)
		}
	}
	return nil
}

// FloatToPCM16 converts samples in [-1, 1] to 16-bit PCM, clipping outliers.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		out[i] = int16(math.Round(v * math.MaxInt16))
	}
	return out
}

// WriteWAV writes float samples as a mono 16-bit PCM WAV file.
func WriteWAV(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)
	if err := writePCM16(w, FloatToPCM16(samples), sampleRate); err != nil {
		return err
	}
	return w.Flush()
}

// ReadFormat walks the RIFF chunks of a WAV file until it finds "fmt ".
// Files that are not RIFF/WAVE return an error.
func ReadFormat(r io.Reader) (Format, error) {
	var riff struct {
		ID   [4]byte
		Size uint32
		Wave [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return Format{}, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Wave[:]) != "WAVE" {
		return Format{}, fmt.Errorf("not a RIFF/WAVE file")
	}

	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return Format{}, fmt.Errorf("missing fmt chunk: %w", err)
		}
		if string(chunk.ID[:]) == "fmt " {
			if chunk.Size < 16 {
				return Format{}, fmt.Errorf("fmt chunk too short: %d bytes", chunk.Size)
			}
			var f struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return Format{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			return Format{
				AudioFormat:   f.AudioFormat,
				Channels:      f.Channels,
				SampleRate:    f.SampleRate,
				BitsPerSample: f.BitsPerSample,
			}, nil
		}
		// chunks are word aligned
		skip := int64(chunk.Size) + int64(chunk.Size&1)
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return Format{}, fmt.Errorf("skip %q chunk: %w", string(chunk.ID[:]), err)
		}
	}
}

// ProbeFile reads the WAV format of the file at path.
func ProbeFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, err
	}
	defer f.Close()
	return ReadFormat(f)
}
