package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// framerState tracks where the segmenter is in the utterance lifecycle.
type framerState int

const (
	stateIdle framerState = iota
	statePending
	stateOpen
)

// FramerConfig tunes the silence/activity segmentation policy.
type FramerConfig struct {
	FrameDuration   time.Duration // loudness window per RMS computation
	RMSThreshold    float64       // frames at/above count as speech
	MinSpeech       time.Duration // sustained speech before an utterance opens
	TrailingSilence time.Duration // silence that closes an open utterance
	MaxUtterance    time.Duration // hard cap, force-flush past this
	MinUtterance    time.Duration // shorter utterances are discarded
}

// DefaultFramerConfig returns the tuning used for live stream audio.
func DefaultFramerConfig() FramerConfig {
	return FramerConfig{
		FrameDuration:   50 * time.Millisecond,
		RMSThreshold:    500,
		MinSpeech:       200 * time.Millisecond,
		TrailingSilence: 800 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
		MinUtterance:    400 * time.Millisecond,
	}
}

// Framer consumes a continuous little-endian 16-bit mono PCM stream and
// emits utterance-sized byte spans through the OnUtterance callback.
// Time is measured in frames, so segmentation is independent of arrival
// timing. Not safe for concurrent use; the capture loop is the only writer.
type Framer struct {
	cfg         FramerConfig
	onUtterance func(pcm []byte)

	frameBytes int
	residual   []byte

	state         framerState
	utterance     []byte
	speechFrames  int
	silenceFrames int
}

// NewFramer builds a framer for the fixed 16 kHz mono stream format.
func NewFramer(cfg FramerConfig, onUtterance func(pcm []byte)) *Framer {
	frameBytes := int(cfg.FrameDuration.Seconds()*SampleRate) * 2
	if frameBytes < 2 {
		frameBytes = 2
	}
	return &Framer{
		cfg:         cfg,
		onUtterance: onUtterance,
		frameBytes:  frameBytes,
	}
}

// RMS computes root-mean-square loudness over little-endian 16-bit samples.
// A dangling odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(n))
}

// Write feeds raw PCM bytes into the segmenter. Utterance callbacks fire
// synchronously from inside Write when a span closes.
func (f *Framer) Write(pcm []byte) {
	f.residual = append(f.residual, pcm...)
	for len(f.residual) >= f.frameBytes {
		frame := f.residual[:f.frameBytes]
		f.processFrame(frame)
		f.residual = f.residual[f.frameBytes:]
	}
}

// Flush force-closes an open utterance at session teardown so trailing
// speech is not lost. A residual partial frame is folded in first.
func (f *Framer) Flush() {
	if len(f.residual) > 0 && f.state == stateOpen {
		f.utterance = append(f.utterance, f.residual...)
	}
	f.residual = nil

	if f.state == stateOpen {
		f.closeUtterance()
	}
	f.reset()
}

func (f *Framer) processFrame(frame []byte) {
	active := RMS(frame) >= f.cfg.RMSThreshold

	switch f.state {
	case stateIdle:
		if active {
			f.state = statePending
			f.utterance = append(f.utterance[:0], frame...)
			f.speechFrames = 1
			f.maybeOpen()
		}

	case statePending:
		if !active {
			// Transient noise, not sustained speech.
			f.reset()
			return
		}
		f.utterance = append(f.utterance, frame...)
		f.speechFrames++
		f.maybeOpen()

	case stateOpen:
		f.utterance = append(f.utterance, frame...)
		if active {
			f.silenceFrames = 0
		} else {
			f.silenceFrames++
		}

		if f.frames(f.silenceFrames) >= f.cfg.TrailingSilence {
			f.closeUtterance()
			f.reset()
			return
		}
		if f.utteranceDuration() >= f.cfg.MaxUtterance {
			f.closeUtterance()
			f.reset()
		}
	}
}

func (f *Framer) maybeOpen() {
	if f.frames(f.speechFrames) >= f.cfg.MinSpeech {
		f.state = stateOpen
		f.silenceFrames = 0
	}
}

func (f *Framer) closeUtterance() {
	if f.utteranceDuration() < f.cfg.MinUtterance {
		return
	}
	span := make([]byte, len(f.utterance))
	copy(span, f.utterance)
	f.onUtterance(span)
}

func (f *Framer) reset() {
	f.state = stateIdle
	f.utterance = f.utterance[:0]
	f.speechFrames = 0
	f.silenceFrames = 0
}

func (f *Framer) frames(n int) time.Duration {
	return time.Duration(n) * f.cfg.FrameDuration
}

func (f *Framer) utteranceDuration() time.Duration {
	samples := len(f.utterance) / 2
	return time.Duration(samples) * time.Second / SampleRate
}
