package translate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mkase/streamlens/backend/internal/model/stream"
)

type fakeGenerator struct {
	response   string
	err        error
	lastPrompt string
	lastSystem string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt, instruction string) (string, error) {
	f.lastPrompt = prompt
	f.lastSystem = instruction
	return f.response, f.err
}

type fakeHistory struct {
	messages       []stream.ChatMessage
	transcriptions []stream.Transcription
}

func (f *fakeHistory) RecentMessages(_ context.Context, _ string, _ time.Time) ([]stream.ChatMessage, error) {
	return f.messages, nil
}

func (f *fakeHistory) RecentTranscriptions(_ context.Context, _ string, _ time.Time) ([]stream.Transcription, error) {
	return f.transcriptions, nil
}

func TestBuildContextEmptyChannel(t *testing.T) {
	tr := New(&fakeGenerator{}, &fakeHistory{})
	got, err := tr.BuildContext(context.Background(), "", time.Now())
	if err != nil {
		t.Fatalf("BuildContext failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty context for unset channel, got %q", got)
	}
}

func TestBuildContextNoRecentRows(t *testing.T) {
	tr := New(&fakeGenerator{}, &fakeHistory{})
	got, err := tr.BuildContext(context.Background(), "chan", time.Now())
	if err != nil {
		t.Fatalf("BuildContext failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty context for quiet channel, got %q", got)
	}
}

func TestBuildContextTranscriptionsOnly(t *testing.T) {
	history := &fakeHistory{
		// Store order is newest first; the builder must reverse it.
		transcriptions: []stream.Transcription{
			{ID: 2, Text: "second"},
			{ID: 1, Text: "first"},
		},
	}
	tr := New(&fakeGenerator{}, history)

	got, err := tr.BuildContext(context.Background(), "chan", time.Now())
	if err != nil {
		t.Fatalf("BuildContext failed: %v", err)
	}

	want := "配信者の最近の発言:\n配信者: first\n配信者: second\n\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if strings.Contains(got, "最近のチャット") {
		t.Error("chat section should be omitted when there are no messages")
	}
}

func TestBuildContextBothSectionsOldestFirst(t *testing.T) {
	history := &fakeHistory{
		transcriptions: []stream.Transcription{{ID: 1, Text: "utterance"}},
		messages: []stream.ChatMessage{
			{ID: 8, Username: "bob", Message: "later"},
			{ID: 7, Username: "alice", Message: "earlier"},
		},
	}
	tr := New(&fakeGenerator{}, history)

	got, err := tr.BuildContext(context.Background(), "chan", time.Now())
	if err != nil {
		t.Fatalf("BuildContext failed: %v", err)
	}

	transIdx := strings.Index(got, "配信者の最近の発言:")
	chatIdx := strings.Index(got, "最近のチャット:")
	if transIdx == -1 || chatIdx == -1 || transIdx > chatIdx {
		t.Fatalf("expected transcription section before chat section, got %q", got)
	}
	if a, b := strings.Index(got, "alice: earlier"), strings.Index(got, "bob: later"); a == -1 || b == -1 || a > b {
		t.Errorf("expected oldest-first chat lines, got %q", got)
	}
}

func TestTranslateChatReturnsTranslation(t *testing.T) {
	gen := &fakeGenerator{response: "hello"}
	tr := New(gen, &fakeHistory{})

	got, ok, err := tr.TranslateChat(context.Background(), "chan", "alice", "こんにちは")
	if err != nil {
		t.Fatalf("TranslateChat failed: %v", err)
	}
	if !ok || got != "hello" {
		t.Errorf("expected (hello, true), got (%q, %v)", got, ok)
	}
	if !strings.Contains(gen.lastPrompt, "翻訳対象メッセージ (alice): こんにちは") {
		t.Errorf("prompt missing message line: %q", gen.lastPrompt)
	}
}

func TestTranslateChatSkipSentinel(t *testing.T) {
	gen := &fakeGenerator{response: "SKIP"}
	tr := New(gen, &fakeHistory{})

	got, ok, err := tr.TranslateChat(context.Background(), "chan", "alice", "LUL")
	if err != nil {
		t.Fatalf("TranslateChat failed: %v", err)
	}
	if ok || got != "" {
		t.Errorf("expected skip, got (%q, %v)", got, ok)
	}
}

func TestTranslateChatEmptyOutput(t *testing.T) {
	gen := &fakeGenerator{response: ""}
	tr := New(gen, &fakeHistory{})

	_, ok, err := tr.TranslateChat(context.Background(), "chan", "alice", "?")
	if err != nil {
		t.Fatalf("TranslateChat failed: %v", err)
	}
	if ok {
		t.Error("expected empty model output to be treated as skip")
	}
}

func TestTranslateChatIncludesContext(t *testing.T) {
	history := &fakeHistory{
		messages: []stream.ChatMessage{{ID: 1, Username: "bob", Message: "prior"}},
	}
	gen := &fakeGenerator{response: "ok"}
	tr := New(gen, history)

	if _, _, err := tr.TranslateChat(context.Background(), "chan", "alice", "hi"); err != nil {
		t.Fatalf("TranslateChat failed: %v", err)
	}
	if !strings.Contains(gen.lastPrompt, "bob: prior") {
		t.Errorf("expected context window in prompt, got %q", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastSystem, "SKIP") {
		t.Error("chat mode should use the instruction profile with the skip rule")
	}
}

func TestTranslateTranscriptionPromptShape(t *testing.T) {
	gen := &fakeGenerator{response: "translated"}
	tr := New(gen, &fakeHistory{})

	got, ok, err := tr.TranslateTranscription(context.Background(), "chan", "発言テスト")
	if err != nil {
		t.Fatalf("TranslateTranscription failed: %v", err)
	}
	if !ok || got != "translated" {
		t.Errorf("expected (translated, true), got (%q, %v)", got, ok)
	}
	if !strings.Contains(gen.lastPrompt, "翻訳対象の配信者の発言: 発言テスト") {
		t.Errorf("prompt missing utterance line: %q", gen.lastPrompt)
	}
}

func TestTranslateManualNoContext(t *testing.T) {
	history := &fakeHistory{
		messages: []stream.ChatMessage{{ID: 1, Username: "bob", Message: "noise"}},
	}
	gen := &fakeGenerator{response: "result"}
	tr := New(gen, history)

	got, err := tr.TranslateManual(context.Background(), "text")
	if err != nil {
		t.Fatalf("TranslateManual failed: %v", err)
	}
	if got != "result" {
		t.Errorf("expected result, got %q", got)
	}
	if gen.lastPrompt != "翻訳対象: text" {
		t.Errorf("manual mode must not include history, got %q", gen.lastPrompt)
	}
}

func TestTranslatePropagatesGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model down")}
	tr := New(gen, &fakeHistory{})

	if _, _, err := tr.TranslateChat(context.Background(), "chan", "a", "b"); err == nil {
		t.Error("expected error from failing generator")
	}
	if _, err := tr.TranslateManual(context.Background(), "x"); err == nil {
		t.Error("expected error from failing generator")
	}
}
