package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAV(t *testing.T) {
	sampleRate := 8000
	numSamples := 800
	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(16383 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	data, err := EncodeWAV(samples, sampleRate)
	require.NoError(t, err)
	assert.Len(t, data, 44+numSamples*2)

	f, err := ReadFormat(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, f.IsPCM16(8000, 1))
	assert.False(t, f.IsPCM16(16000, 1))
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	_, err := EncodeWAV(nil, 16000)
	assert.Error(t, err)

	_, err = EncodeWAV([]int16{1}, 0)
	assert.Error(t, err)
}

func TestFloatToPCM16Clips(t *testing.T) {
	got := FloatToPCM16([]float32{0, 1, -1, 2, -3, float32(math.NaN())})
	assert.Equal(t, []int16{0, math.MaxInt16, -math.MaxInt16, math.MaxInt16, -math.MaxInt16, 0}, got)
}

func TestReadFormatSkipsLeadingChunks(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	// odd-sized LIST chunk with a pad byte
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, struct {
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}{1, 2, 44100, 44100 * 4, 4, 16})

	f, err := ReadFormat(&buf)
	require.NoError(t, err)
	assert.Equal(t, Format{AudioFormat: 1, Channels: 2, SampleRate: 44100, BitsPerSample: 16}, f)
}

func TestReadFormatRejectsNonWAV(t *testing.T) {
	_, err := ReadFormat(bytes.NewReader([]byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00")))
	assert.Error(t, err)
}

func TestWriteWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, WriteWAV(path, []float32{0, 0.5, -0.5}, 44100))

	f, err := ProbeFile(path)
	require.NoError(t, err)
	assert.True(t, f.IsPCM16(44100, 1))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(44+3*2), info.Size())
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	data, err := EncodeWAV([]int16{1, -1}, 16000)
	require.NoError(t, err)
	require.Len(t, data, 48)

	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, "WAVEfmt ", string(data[8:16]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(data[28:32]), "byte rate")
	assert.Equal(t, "data", string(data[36:40]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, []byte{1, 0, 0xff, 0xff}, data[44:])
}

func TestWriteWAVLeavesNothingOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	assert.Error(t, WriteWAV(path, nil, 16000))
	assert.NoFileExists(t, path)
}
