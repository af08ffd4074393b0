package wave

import (
	"bytes"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes MP3 data into a mono waveform. Stereo input is
// averaged down to one channel.
func DecodeMP3(b []byte) (*Waveform, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("wave: couldn't decode mp3: %w", err)
	}

	var stereo [2][]float64
	buf := make([]byte, 2) // 2 bytes per sample for 16-bit audio
	var i int
	for {
		_, err := decoder.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wave: couldn't read sample: %w", err)
		}
		// Convert bytes to 16-bit integer sample, assuming little endian
		sample := int16(buf[0]) | int16(buf[1])<<8
		normalized := float64(sample) / 32768.0
		stereo[i%2] = append(stereo[i%2], normalized)
		i++
	}

	mono := make([]float64, 0, len(stereo[0]))
	for i, left := range stereo[0] {
		right := left
		if i < len(stereo[1]) {
			right = stereo[1][i]
		}
		mono = append(mono, (left+right)/2.0)
	}

	return &Waveform{Samples: mono, Rate: decoder.SampleRate()}, nil
}
