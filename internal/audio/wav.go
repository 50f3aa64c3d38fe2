package audio

import (
	"encoding/binary"
	"fmt"
)

// WAV format constants.
const (
	// WAVHeaderSize is the size of the canonical WAV header in bytes.
	WAVHeaderSize = 44

	// formatPCM is the audio format code for uncompressed PCM.
	formatPCM = 1

	// WAVMimeType is the MIME type of exported WAV files.
	WAVMimeType = "audio/wav"
)

// WAVHeader is the decoded form of a canonical 44-byte header.
type WAVHeader struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// EncodeWAV wraps mono 16-bit PCM in a RIFF/WAVE container. The PCM is copied
// verbatim after the header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	dataSize := len(pcm)
	out := make([]byte, WAVHeaderSize, WAVHeaderSize+dataSize)
	le := binary.LittleEndian

	// RIFF header
	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	// fmt subchunk
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], formatPCM)
	le.PutUint16(out[22:24], 1)
	le.PutUint32(out[24:28], uint32(sampleRate))
	le.PutUint32(out[28:32], uint32(sampleRate*2))
	le.PutUint16(out[32:34], 2)
	le.PutUint16(out[34:36], 16)

	// data subchunk
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(dataSize))

	return append(out, pcm...)
}

// ReadWAVHeader parses the canonical header written by EncodeWAV.
func ReadWAVHeader(data []byte) (WAVHeader, error) {
	if len(data) < WAVHeaderSize {
		return WAVHeader{}, fmt.Errorf("wav data too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVHeader{}, fmt.Errorf("missing RIFF/WAVE signature")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return WAVHeader{}, fmt.Errorf("unexpected chunk layout")
	}

	le := binary.LittleEndian
	return WAVHeader{
		AudioFormat:   le.Uint16(data[20:22]),
		Channels:      le.Uint16(data[22:24]),
		SampleRate:    le.Uint32(data[24:28]),
		ByteRate:      le.Uint32(data[28:32]),
		BlockAlign:    le.Uint16(data[32:34]),
		BitsPerSample: le.Uint16(data[34:36]),
		DataSize:      le.Uint32(data[40:44]),
	}, nil
}
