// Command pipelinetester exercises the audio pipeline stages by hand:
// segmenting a raw PCM capture into utterances, or running one WAV file
// through transcription and translation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkase/streamlens/backend/internal/audio"
	"github.com/mkase/streamlens/backend/internal/config"
	"github.com/mkase/streamlens/backend/internal/model/stream"
	"github.com/mkase/streamlens/backend/internal/transcribe"
	"github.com/mkase/streamlens/backend/internal/translate"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	mode := flag.String("mode", "", "test mode: segment or transcribe")
	input := flag.String("in", "", "input file (segment: raw s16le 16kHz mono PCM; transcribe: WAV)")
	outDir := flag.String("out", ".", "output directory for segmented utterance WAVs")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		log.Fatal("specify an input file with -in")
	}

	switch *mode {
	case "segment":
		runSegment(cfg, *input, *outDir)
	case "transcribe":
		runTranscribe(cfg, *input, *timeout)
	default:
		flag.Usage()
		log.Fatal("specify -mode=segment or -mode=transcribe")
	}
}

// runSegment feeds the PCM file through the framer and writes each closed
// utterance as a numbered WAV file.
func runSegment(cfg *config.Config, input, outDir string) {
	pcm, err := os.ReadFile(input)
	if err != nil {
		log.Fatalf("failed to read %s: %v", input, err)
	}

	framerCfg := audio.DefaultFramerConfig()
	framerCfg.RMSThreshold = cfg.Audio.RMSThreshold
	framerCfg.MinSpeech = cfg.Audio.MinSpeech
	framerCfg.TrailingSilence = cfg.Audio.TrailingSilence
	framerCfg.MaxUtterance = cfg.Audio.MaxUtterance
	framerCfg.MinUtterance = cfg.Audio.MinUtterance

	count := 0
	framer := audio.NewFramer(framerCfg, func(utterance []byte) {
		count++
		name := filepath.Join(outDir, fmt.Sprintf("utterance-%03d.wav", count))
		if err := os.WriteFile(name, audio.EncodeWAV(utterance), 0o644); err != nil {
			log.Fatalf("failed to write %s: %v", name, err)
		}
		dur := time.Duration(len(utterance)/2) * time.Second / audio.SampleRate
		log.Printf("utterance %d: %v -> %s", count, dur, name)
	})

	framer.Write(pcm)
	framer.Flush()
	log.Printf("done: %d utterances from %d PCM bytes", count, len(pcm))
}

// runTranscribe pushes one WAV file through speech-to-text and, when a
// model is configured, through transcription translation as well.
func runTranscribe(cfg *config.Config, input string, timeout time.Duration) {
	if !cfg.STT.Enabled() {
		log.Fatal("OPENAI_API_KEY is not configured")
	}

	wav, err := os.ReadFile(input)
	if err != nil {
		log.Fatalf("failed to read %s: %v", input, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := transcribe.NewClient(cfg.STT.APIKey, cfg.STT.Model)
	text, err := client.Transcribe(ctx, wav)
	if err != nil {
		log.Fatalf("transcription failed: %v", err)
	}
	log.Printf("transcription: %s", text)

	if !cfg.AI.Enabled() {
		log.Println("Ark credentials not configured, skipping translation")
		return
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to initialize translation model: %v", err)
	}

	translator := translate.New(translate.NewModelGenerator(chatModel), noHistory{})
	translation, ok, err := translator.TranslateTranscription(ctx, "", text)
	if err != nil {
		log.Fatalf("translation failed: %v", err)
	}
	if !ok {
		log.Println("translation skipped: no translation needed")
		return
	}
	log.Printf("translation: %s", translation)
}

// noHistory is an empty context source for one-off translations.
type noHistory struct{}

func (noHistory) RecentMessages(context.Context, string, time.Time) ([]stream.ChatMessage, error) {
	return nil, nil
}

func (noHistory) RecentTranscriptions(context.Context, string, time.Time) ([]stream.Transcription, error) {
	return nil, nil
}
