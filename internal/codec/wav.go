package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	CanonicalBits       = 16

	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE

	// maxFmtChunk bounds the fmt bytes buffered; the rest is skipped.
	maxFmtChunk = 64
)

var errNotWAV = errors.New("not a WAV")

// WAVFormat is the fmt chunk of a RIFF/WAVE stream plus the data chunk size.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataSize      uint32
}

// Canonical reports 16 kHz mono 16-bit PCM.
func (f WAVFormat) Canonical() bool {
	pcm := f.AudioFormat == wavFormatPCM || f.AudioFormat == wavFormatExtensible
	return pcm && f.SampleRate == CanonicalSampleRate && f.Channels == CanonicalChannels && f.BitsPerSample == CanonicalBits
}

// LooksLikeWAV sniffs the RIFF/WAVE magic.
func LooksLikeWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// LooksLikeMP3 sniffs an ID3 tag or an MPEG frame sync.
func LooksLikeMP3(b []byte) bool {
	return (len(b) >= 3 && string(b[:3]) == "ID3") ||
		(len(b) >= 2 && b[0] == 0xFF && (b[1]&0xE0) == 0xE0)
}

// ReadWAVFormat walks RIFF chunks until it has seen both "fmt " and "data".
// Sample data is skipped, not loaded.
func ReadWAVFormat(r io.Reader) (WAVFormat, error) {
	var wf WAVFormat
	hdr := make([]byte, 12)
	if _, err := io.ReadFull(r, hdr); err != nil || !LooksLikeWAV(hdr) {
		return wf, errNotWAV
	}
	gotFmt := false
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			if gotFmt {
				return wf, fmt.Errorf("no data chunk")
			}
			return wf, fmt.Errorf("no fmt chunk")
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])
		switch id {
		case "fmt ":
			if size < 16 {
				return wf, fmt.Errorf("fmt too small")
			}
			body := make([]byte, min(size, maxFmtChunk))
			if _, err := io.ReadFull(r, body); err != nil {
				return wf, fmt.Errorf("truncated fmt chunk")
			}
			if rest := int64(size) - int64(len(body)); rest > 0 {
				if _, err := io.CopyN(io.Discard, r, rest); err != nil {
					return wf, fmt.Errorf("truncated fmt chunk")
				}
			}
			wf.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			wf.Channels = binary.LittleEndian.Uint16(body[2:4])
			wf.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			wf.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			if wf.AudioFormat == wavFormatExtensible && len(body) >= 40 {
				// sub-format GUID starts with the real format code
				if binary.LittleEndian.Uint32(body[24:28]) != wavFormatPCM {
					wf.AudioFormat = 0
				}
			}
			gotFmt = true
		case "data":
			if !gotFmt {
				return wf, fmt.Errorf("data before fmt")
			}
			wf.DataSize = size
			if wf.Channels == 0 || wf.SampleRate == 0 || wf.BitsPerSample == 0 {
				return wf, fmt.Errorf("bad header")
			}
			return wf, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return wf, fmt.Errorf("truncated chunk %s", id)
			}
		}
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return wf, fmt.Errorf("truncated chunk %s", id)
			}
		}
	}
}

// ReadWAVFile opens path and reads its format.
func ReadWAVFile(path string) (WAVFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVFormat{}, err
	}
	defer f.Close()
	return ReadWAVFormat(f)
}

// EncodeWAV wraps little-endian PCM16 samples in a 44-byte RIFF header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	byteRate := sampleRate * channels * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Silence returns ms milliseconds of canonical silent WAV, used by mock synthesis.
func Silence(ms int) []byte {
	return EncodeWAV(make([]byte, CanonicalSampleRate*2*ms/1000), CanonicalSampleRate, CanonicalChannels)
}
