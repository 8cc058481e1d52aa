package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header for PCM audio
const WAVHeaderSize = 44

// UnknownLength marks a stream whose final data size is not known yet
const UnknownLength int64 = -1

// WAVFormat describes the PCM layout written into a WAV header
type WAVFormat struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// BlockAlign returns the number of bytes per sample frame
func (f WAVFormat) BlockAlign() int {
	return f.Channels * (f.BitsPerSample / 8)
}

// ByteRate returns the number of bytes per second of audio
func (f WAVFormat) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate checks that the format can be expressed in a PCM header
func (f WAVFormat) Validate() error {
	if f.Channels <= 0 || f.Channels > 0xFFFF {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 || f.BitsPerSample > 0xFFFF {
		return fmt.Errorf("invalid bits per sample %d", f.BitsPerSample)
	}
	return nil
}

// EncodeWAVHeader builds the 44 byte header.
// A negative dataLength writes the -1 sentinel into both size fields, which
// only works with transports that send the body chunked.
func EncodeWAVHeader(format WAVFormat, dataLength int64) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if dataLength > 0xFFFFFFFF-36 {
		return nil, fmt.Errorf("audio length %d does not fit in a WAV header", dataLength)
	}

	riffSize := uint32(0xFFFFFFFF)
	dataSize := uint32(0xFFFFFFFF)
	if dataLength >= 0 {
		riffSize = uint32(dataLength + 36)
		dataSize = uint32(dataLength)
	}

	header := make([]byte, WAVHeaderSize)

	// RIFF chunk
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], riffSize)
	copy(header[8:12], "WAVE")

	// "fmt " sub-chunk
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // Sub-chunk size (16 for PCM)
	binary.LittleEndian.PutUint16(header[20:22], 1)  // Audio format (1 for PCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(format.ByteRate()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(format.BlockAlign()))
	binary.LittleEndian.PutUint16(header[34:36], uint16(format.BitsPerSample))

	// "data" sub-chunk
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	return header, nil
}

// WriteWAVHeader writes the header for format to w
func WriteWAVHeader(w io.Writer, format WAVFormat, dataLength int64) error {
	header, err := EncodeWAVHeader(format, dataLength)
	if err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing wav header: %w", err)
	}
	return nil
}
