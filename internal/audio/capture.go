package audio

import (
	"fmt"
	"io"
	"log"
	"os/exec"
)

// Capture is a live PCM source for one channel's stream audio. It pipes
// streamlink's audio-only variant through ffmpeg, which resamples to the
// fixed 16 kHz mono s16le format the framer expects.
type Capture struct {
	streamlink *exec.Cmd
	ffmpeg     *exec.Cmd
	out        io.ReadCloser
}

// NewCapture starts the capture pipeline for a Twitch channel. Both
// processes are already running when it returns.
func NewCapture(channel string) (*Capture, error) {
	url := "https://www.twitch.tv/" + channel

	streamlink := exec.Command("streamlink", "--stdout", "--quiet", url, "audio_only")
	ffmpeg := exec.Command("ffmpeg",
		"-loglevel", "quiet",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", "1",
		"pipe:1",
	)

	pipe, err := streamlink.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("streamlink stdout pipe: %w", err)
	}
	ffmpeg.Stdin = pipe

	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	if err := streamlink.Start(); err != nil {
		return nil, fmt.Errorf("start streamlink: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		_ = streamlink.Process.Kill()
		_ = streamlink.Wait()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Capture{streamlink: streamlink, ffmpeg: ffmpeg, out: out}, nil
}

// Read yields raw PCM bytes from the running pipeline.
func (c *Capture) Read(p []byte) (int, error) {
	return c.out.Read(p)
}

// Close stops both processes. Reads in flight fail once the pipe closes.
func (c *Capture) Close() error {
	_ = c.out.Close()
	if c.ffmpeg.Process != nil {
		_ = c.ffmpeg.Process.Kill()
	}
	if c.streamlink.Process != nil {
		_ = c.streamlink.Process.Kill()
	}
	if err := c.ffmpeg.Wait(); err != nil {
		log.Printf("[capture] ffmpeg exited: %v", err)
	}
	if err := c.streamlink.Wait(); err != nil {
		log.Printf("[capture] streamlink exited: %v", err)
	}
	return nil
}
