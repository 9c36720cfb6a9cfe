package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// SampleRate is the fixed rate of the capture pipeline.
	SampleRate = 16000

	numChannels   = 1
	bitsPerSample = 16
	headerSize    = 44
)

// wavHeader is the 44-byte RIFF header for uncompressed PCM audio.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV wraps little-endian 16-bit mono PCM bytes in a WAV container at
// the fixed pipeline sample rate. The layout matches the standard header
// byte for byte so speech services accept it without a content-type
// override.
func EncodeWAV(pcm []byte) []byte {
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    SampleRate,
		ByteRate:      SampleRate * numChannels * bitsPerSample / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	// binary.Write into a bytes.Buffer cannot fail for fixed-size data.
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV extracts the PCM data bytes and sample rate from a WAV
// container produced by EncodeWAV.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < headerSize {
		return nil, 0, fmt.Errorf("wav data too short: need at least %d bytes, got %d", headerSize, len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("read wav header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE container")
	}
	if string(header.Subchunk1ID[:]) != "fmt " || string(header.Subchunk2ID[:]) != "data" {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format %d, want PCM", header.AudioFormat)
	}

	pcm := data[headerSize:]
	if int(header.Subchunk2Size) > len(pcm) {
		return nil, 0, fmt.Errorf("data chunk declares %d bytes, only %d present", header.Subchunk2Size, len(pcm))
	}
	return pcm[:header.Subchunk2Size], int(header.SampleRate), nil
}
