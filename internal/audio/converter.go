package audio

import (
	"fmt"
	"math"
	"strings"
)

// Encoding identifies how incoming audio frames are encoded
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm16" // 16-bit signed little-endian linear PCM
	EncodingPCMU  Encoding = "pcmu"  // G.711 mu-law, one byte per sample
)

// ParseEncoding maps a user supplied encoding name, defaulting to PCM16
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pcm", "pcm16", "linear16":
		return EncodingPCM16, nil
	case "pcmu", "mulaw", "ulaw":
		return EncodingPCMU, nil
	default:
		return "", fmt.Errorf("unsupported audio encoding %q", s)
	}
}

// ToPCM16 converts a frame in the given encoding to 16-bit linear PCM.
// PCM16 frames are returned as-is.
func ToPCM16(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingPCM16, "":
		return data, nil
	case EncodingPCMU:
		return ConvertPCMUToPCM(data)
	default:
		return nil, fmt.Errorf("unsupported audio encoding %q", enc)
	}
}

// ConvertPCMUToPCM converts G.711 PCMU (mu-law) to 16-bit little-endian PCM
func ConvertPCMUToPCM(pcmuData []byte) ([]byte, error) {
	if len(pcmuData) == 0 {
		return nil, fmt.Errorf("empty PCMU data")
	}

	pcmData := make([]byte, len(pcmuData)*2) // 16-bit output

	for i, mulawByte := range pcmuData {
		sample := mulawToLinear(mulawByte)
		pcmData[i*2] = byte(sample)
		pcmData[i*2+1] = byte(sample >> 8)
	}

	return pcmData, nil
}

// mulawToLinear converts an 8-bit mu-law sample to 16-bit linear PCM
func mulawToLinear(mulawByte byte) int16 {
	// mu-law bytes are stored inverted
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	// step = (mantissa << (segment + 1)) + (33 << segment), minus the bias
	step := mantissa << (segment + 1)
	step += int32(33) << segment
	magnitude := step - 33

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// PCM16Samples decodes 16-bit little-endian PCM into samples.
// A trailing odd byte is ignored.
func PCM16Samples(pcmData []byte) []int16 {
	samples := make([]int16, len(pcmData)/2)
	for i := range samples {
		samples[i] = int16(pcmData[i*2]) | int16(pcmData[i*2+1])<<8
	}
	return samples
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
