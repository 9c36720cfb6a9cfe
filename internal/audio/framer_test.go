package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func testConfig() FramerConfig {
	return FramerConfig{
		FrameDuration:   50 * time.Millisecond,
		RMSThreshold:    500,
		MinSpeech:       100 * time.Millisecond,
		TrailingSilence: 200 * time.Millisecond,
		MaxUtterance:    2 * time.Second,
		MinUtterance:    200 * time.Millisecond,
	}
}

// pcmFrames builds n frames of constant-amplitude samples at 16 kHz.
func pcmFrames(n int, frameDur time.Duration, amplitude int16) []byte {
	samplesPerFrame := int(frameDur.Seconds() * SampleRate)
	out := make([]byte, 0, n*samplesPerFrame*2)
	var sample [2]byte
	binary.LittleEndian.PutUint16(sample[:], uint16(amplitude))
	for i := 0; i < n*samplesPerFrame; i++ {
		out = append(out, sample[:]...)
	}
	return out
}

func TestRMS(t *testing.T) {
	silence := make([]byte, 640)
	if got := RMS(silence); got != 0 {
		t.Errorf("RMS of silence: expected 0, got %f", got)
	}

	loud := pcmFrames(1, 50*time.Millisecond, 1000)
	if got := RMS(loud); got != 1000 {
		t.Errorf("RMS of constant 1000: expected 1000, got %f", got)
	}

	negative := pcmFrames(1, 50*time.Millisecond, -1000)
	if got := RMS(negative); got != 1000 {
		t.Errorf("RMS of constant -1000: expected 1000, got %f", got)
	}
}

func TestRMSIgnoresDanglingByte(t *testing.T) {
	pcm := append(pcmFrames(1, 50*time.Millisecond, 1000), 0xFF)
	if got := RMS(pcm); got != 1000 {
		t.Errorf("expected dangling byte to be ignored, got RMS %f", got)
	}
}

func TestFramerEmitsUtteranceAfterSilence(t *testing.T) {
	var emitted [][]byte
	f := NewFramer(testConfig(), func(pcm []byte) { emitted = append(emitted, pcm) })

	f.Write(pcmFrames(10, 50*time.Millisecond, 2000)) // 500ms speech
	f.Write(pcmFrames(5, 50*time.Millisecond, 0))     // 250ms silence closes

	if len(emitted) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(emitted))
	}
	// 500ms speech = 8000 samples = 16000 bytes at minimum.
	if len(emitted[0]) < 16000 {
		t.Errorf("utterance too short: %d bytes", len(emitted[0]))
	}
}

func TestFramerDiscardsTransientNoise(t *testing.T) {
	var emitted [][]byte
	f := NewFramer(testConfig(), func(pcm []byte) { emitted = append(emitted, pcm) })

	// Single loud frame (50ms) is below the 100ms sustained-speech gate.
	f.Write(pcmFrames(1, 50*time.Millisecond, 2000))
	f.Write(pcmFrames(10, 50*time.Millisecond, 0))

	if len(emitted) != 0 {
		t.Fatalf("expected transient noise to be dropped, got %d utterances", len(emitted))
	}
}

func TestFramerDiscardsBelowMinUtterance(t *testing.T) {
	cfg := testConfig()
	cfg.MinUtterance = time.Second
	var emitted [][]byte
	f := NewFramer(cfg, func(pcm []byte) { emitted = append(emitted, pcm) })

	f.Write(pcmFrames(6, 50*time.Millisecond, 2000)) // 300ms, under the 1s floor
	f.Write(pcmFrames(10, 50*time.Millisecond, 0))

	if len(emitted) != 0 {
		t.Fatalf("expected sub-minimum utterance to be discarded, got %d", len(emitted))
	}
}

func TestFramerForceFlushesAtMaxDuration(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUtterance = time.Second
	var emitted [][]byte
	f := NewFramer(cfg, func(pcm []byte) { emitted = append(emitted, pcm) })

	// 3 seconds of uninterrupted speech: one forced flush at the 1s cap,
	// then a new utterance accumulates and flushes again.
	f.Write(pcmFrames(60, 50*time.Millisecond, 2000))

	if len(emitted) != 3 {
		t.Fatalf("expected 3 force-flushed utterances over 3s, got %d", len(emitted))
	}
	for i, u := range emitted {
		if len(u) != 32000 { // 1s of 16kHz s16le
			t.Errorf("utterance %d: expected 32000 bytes, got %d", i, len(u))
		}
	}
}

func TestFramerFlushDrainsOpenUtterance(t *testing.T) {
	var emitted [][]byte
	f := NewFramer(testConfig(), func(pcm []byte) { emitted = append(emitted, pcm) })

	f.Write(pcmFrames(10, 50*time.Millisecond, 2000))
	if len(emitted) != 0 {
		t.Fatal("utterance should still be open before flush")
	}

	f.Flush()
	if len(emitted) != 1 {
		t.Fatalf("expected flush to emit the open utterance, got %d", len(emitted))
	}

	// Flush on an idle framer is a no-op.
	f.Flush()
	if len(emitted) != 1 {
		t.Fatalf("idle flush should emit nothing, got %d", len(emitted))
	}
}

func TestFramerHandlesUnalignedWrites(t *testing.T) {
	var emitted [][]byte
	f := NewFramer(testConfig(), func(pcm []byte) { emitted = append(emitted, pcm) })

	speech := pcmFrames(10, 50*time.Millisecond, 2000)
	for i := 0; i < len(speech); i += 333 {
		end := i + 333
		if end > len(speech) {
			end = len(speech)
		}
		f.Write(speech[i:end])
	}
	f.Write(pcmFrames(5, 50*time.Millisecond, 0))

	if len(emitted) != 1 {
		t.Fatalf("expected 1 utterance from chunked writes, got %d", len(emitted))
	}
}
