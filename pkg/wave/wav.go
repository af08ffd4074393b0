package wave

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// 16-bit mono PCM RIFF encoding. Enough for exported mixes and stems,
// no extensible header support.

const (
	wavHeaderSize = 44
	pcmFormat     = 1
)

// EncodeWAV serializes the waveform as a 16-bit mono PCM WAV file.
func EncodeWAV(w *Waveform) ([]byte, error) {
	if w == nil || w.Rate <= 0 {
		return nil, fmt.Errorf("wave: invalid waveform")
	}
	dataSize := len(w.Samples) * 2
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + dataSize)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(pcmFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(w.Rate))
	binary.Write(&buf, binary.LittleEndian, uint32(w.Rate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))        // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))       // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for _, v := range w.Samples {
		s := int16(math.Round(clamp(v) * 32767.0))
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes(), nil
}

// DecodeWAV parses a 16-bit PCM WAV file into a mono waveform.
// Multi-channel input is averaged down to one channel.
func DecodeWAV(b []byte) (*Waveform, error) {
	if len(b) < wavHeaderSize {
		return nil, fmt.Errorf("wave: wav data too short (%d bytes)", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, fmt.Errorf("wave: not a riff wave file")
	}

	var channels, bits int
	var rate int
	var data []byte
	// Walk chunks: the fmt chunk may be followed by non-data chunks.
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if body+size > len(b) {
			return nil, fmt.Errorf("wave: truncated chunk %q", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wave: invalid fmt chunk size %d", size)
			}
			format := int(binary.LittleEndian.Uint16(b[body : body+2]))
			if format != pcmFormat {
				return nil, fmt.Errorf("wave: unsupported wav format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
		case "data":
			data = b[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++ // chunks are word aligned
		}
	}
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("wave: missing fmt chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("wave: unsupported bit depth %d", bits)
	}
	if data == nil {
		return nil, fmt.Errorf("wave: missing data chunk")
	}

	frame := channels * 2
	frames := len(data) / frame
	mono := make([]float64, 0, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			p := i*frame + c*2
			sample := int16(binary.LittleEndian.Uint16(data[p : p+2]))
			sum += float64(sample) / 32768.0
		}
		mono = append(mono, sum/float64(channels))
	}
	return &Waveform{Samples: mono, Rate: rate}, nil
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
