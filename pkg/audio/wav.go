package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const bitsPerSample = 16

// Clip is a decoded block of 16-bit PCM with its format.
type Clip struct {
	Format  Format
	Samples []int16 // interleaved
}

// Frames returns the number of sample frames (samples per channel).
func (c Clip) Frames() int {
	if c.Format.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Format.Channels
}

// EncodeWAV wraps interleaved 16-bit PCM samples in a canonical 44-byte RIFF
// header.
func EncodeWAV(samples []int16, f Format) []byte {
	pcm := SamplesToBytes(samples)
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// WriteWAVFile encodes samples with [EncodeWAV] and writes them to path.
func WriteWAVFile(path string, samples []int16, f Format) error {
	if err := os.WriteFile(path, EncodeWAV(samples, f), 0o600); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	return nil
}

// DecodeWAV parses a RIFF/WAVE stream containing 16-bit integer PCM. Chunks
// other than "fmt " and "data" are skipped.
func DecodeWAV(r io.Reader) (Clip, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Clip{}, fmt.Errorf("audio: read wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Clip{}, errors.New("audio: not a RIFF/WAVE stream")
	}

	var (
		clip   Clip
		gotFmt bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Clip{}, errors.New("audio: wav has no data chunk")
			}
			return Clip{}, fmt.Errorf("audio: read wav chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Clip{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return Clip{}, errors.New("audio: fmt chunk too short")
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 && tag != 0xFFFE {
				return Clip{}, fmt.Errorf("audio: unsupported wav encoding %d", tag)
			}
			if bps := binary.LittleEndian.Uint16(body[14:16]); bps != bitsPerSample {
				return Clip{}, fmt.Errorf("audio: unsupported bit depth %d", bps)
			}
			clip.Format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			clip.Format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return Clip{}, errors.New("audio: data chunk before fmt chunk")
			}
			var pcm bytes.Buffer
			// Some streaming writers leave the size at 0 or 0xFFFFFFFF.
			if size == 0 || size == 0xFFFFFFFF {
				if _, err := io.Copy(&pcm, r); err != nil {
					return Clip{}, fmt.Errorf("audio: read data chunk: %w", err)
				}
			} else if _, err := io.CopyN(&pcm, r, size); err != nil && !errors.Is(err, io.EOF) {
				return Clip{}, fmt.Errorf("audio: read data chunk: %w", err)
			}
			clip.Samples = BytesToSamples(pcm.Bytes())
			return clip, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return Clip{}, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 && id == "fmt " {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return Clip{}, fmt.Errorf("audio: skip pad byte: %w", err)
			}
		}
	}
}

// ReadWAVFile opens path and decodes it with [DecodeWAV].
func ReadWAVFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}
