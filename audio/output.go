package audio

import (
	"encoding/binary"
	"time"

	"github.com/gopxl/beep"
	ebitenaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Output is the device a mix plays through. Position is the audio clock
// used to detect drift against the playback clock.
type Output interface {
	Play()
	Pause()
	IsPlaying() bool
	Position() time.Duration
	Close() error
}

const bytesPerFrame = 4 // 16-bit stereo

// pcmReader renders a beep stream as signed 16-bit little-endian stereo.
type pcmReader struct {
	src beep.Streamer
	buf [][2]float64
}

func (r *pcmReader) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames {
		r.buf = make([][2]float64, frames)
	}
	buf := r.buf[:frames]
	n, _ := r.src.Stream(buf)
	for i := 0; i < frames; i++ {
		var l, rr float64
		if i < n {
			l, rr = buf[i][0], buf[i][1]
		}
		binary.LittleEndian.PutUint16(p[i*4:], uint16(toPCM(l)))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(toPCM(rr)))
	}
	return frames * bytesPerFrame, nil
}

func toPCM(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// NewEbitenOutput plays the engine's mix through the process-wide ebiten
// audio context, creating it if needed.
func NewEbitenOutput(e *Engine) (Output, error) {
	ctx := ebitenaudio.CurrentContext()
	if ctx == nil {
		ctx = ebitenaudio.NewContext(e.SampleRate())
	}
	p, err := ctx.NewPlayer(&pcmReader{src: e})
	if err != nil {
		return nil, err
	}
	p.SetBufferSize(80 * time.Millisecond)
	return p, nil
}
