// Package audio provides the WAV container and PCM helpers shared by the
// voxgate providers and pipelines.
//
// All audio inside the gateway is 16-bit signed little-endian PCM. Client
// microphone frames arrive WAV-wrapped at 16 kHz mono, STT uploads are
// WAV-wrapped slices of the turn buffer, and TTS providers return WAV blobs
// whose headers are parsed for playback metadata.
package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// HeaderSize is the size in bytes of the canonical RIFF/WAVE/fmt /data
// header produced by [Encode].
const HeaderSize = 44

// bitsPerSample is fixed; the gateway only handles 16-bit PCM.
const bitsPerSample = 16

// Encode wraps raw 16-bit signed little-endian PCM in a standard RIFF/WAVE
// container with the canonical 44-byte header. The result is suitable for a
// multipart upload or a binary WebSocket frame.
func Encode(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, HeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// Info holds the format metadata extracted from a RIFF/WAVE header.
type Info struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second
	Channels   int // 1 = mono, 2 = stereo
}

// Parse scans the RIFF/WAVE container in wav and returns the data offset and
// audio format from the "fmt " sub-chunk. Walking the chunks is more robust
// than assuming a fixed 44-byte offset because the fmt chunk size may vary
// between encoders.
//
// Returns an error if wav is not a valid RIFF/WAVE container or the fmt or
// data chunk cannot be located.
func Parse(wav []byte) (Info, error) {
	if len(wav) < 12 {
		return Info{}, errors.New("audio: too short to be a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return Info{}, errors.New("audio: missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return Info{}, errors.New("audio: missing WAVE identifier")
	}

	var info Info
	foundFmt := false

	// Walk RIFF chunks starting after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt should precede data; fall back to the gateway default.
				info.SampleRate = 16000
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Info{}, errors.New("audio: missing data chunk")
}

// StripHeader returns the PCM payload of a WAV-wrapped buffer. Buffers that
// do not parse as RIFF/WAVE are returned unchanged, so callers can feed it
// raw PCM and WAV frames interchangeably.
func StripHeader(b []byte) []byte {
	info, err := Parse(b)
	if err != nil {
		return b
	}
	return b[info.DataOffset:]
}

// PCMDurationMs returns the playback duration in milliseconds of a 16-bit
// PCM buffer. Returns 0 for invalid inputs.
func PCMDurationMs(pcmLen, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return pcmLen * 1000 / bytesPerSec
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer, in sample units (0–32767). Returns 0 for buffers shorter than
// one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
