package voice

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

const (
	sampleRate = 48000
	channels   = 2
	// 20ms of stereo s16le audio per opus frame.
	frameSize    = 960
	frameBytes   = frameSize * channels * 2
	maxOpusBytes = frameBytes
)

// pcmStreamer decodes interleaved stereo s16le PCM (ffmpeg's output) into a
// beep.Streamer.
type pcmStreamer struct {
	r   *bufio.Reader
	buf [4]byte
	err error
}

func newPCMStreamer(r io.Reader) *pcmStreamer {
	return &pcmStreamer{r: bufio.NewReaderSize(r, frameBytes*4)}
}

func (p *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if p.err != nil {
		return 0, false
	}
	for i := range samples {
		if _, err := io.ReadFull(p.r, p.buf[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.err = err
			}
			return i, i > 0
		}
		left := int16(binary.LittleEndian.Uint16(p.buf[0:2]))
		right := int16(binary.LittleEndian.Uint16(p.buf[2:4]))
		samples[i][0] = float64(left) / 32768
		samples[i][1] = float64(right) / 32768
	}
	return len(samples), true
}

func (p *pcmStreamer) Err() error {
	return p.err
}

// withVolume scales s by a linear gain (1 = unchanged, 0 = silent).
func withVolume(s beep.Streamer, gain float64) beep.Streamer {
	if gain == 1 {
		return s
	}
	return &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   math.Log2(math.Max(gain, math.SmallestNonzeroFloat64)),
		Silent:   gain <= 0,
	}
}

// toInt16 converts samples into interleaved int16 PCM, clamping to range.
// out must hold 2*len(samples) values.
func toInt16(samples [][2]float64, out []int16) {
	for i, s := range samples {
		out[2*i] = clampSample(s[0])
		out[2*i+1] = clampSample(s[1])
	}
}

func clampSample(v float64) int16 {
	v *= 32768
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
