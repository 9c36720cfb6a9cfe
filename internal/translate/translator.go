// Package translate decides, per chat message or utterance, whether and how
// to translate it using a bounded window of recent conversation.
package translate

import (
	"context"
	"fmt"
	"time"
)

// skipSentinel is the reserved model response meaning "no translation
// needed". It must never reach a viewer.
const skipSentinel = "SKIP"

const chatInstruction = `あなたはTwitchチャットの翻訳者です。

ルール:
- 翻訳不要なもの（エモート、スタンプ、万国共通の短い語、URLのみ等）は「SKIP」と返してください
- メッセージが日本語の場合、英語に翻訳してください
- それ以外は自然な日本語に翻訳してください
- 会話の文脈を考慮して翻訳してください
- 翻訳文のみを返してください。説明や注釈は不要です`

const transcriptionInstruction = `あなたはTwitch配信者の発言の翻訳者です。

ルール:
- 発言が日本語の場合、英語に翻訳してください
- それ以外は自然な日本語に翻訳してください
- 会話の文脈を考慮して翻訳してください
- 翻訳文のみを返してください。説明や注釈は不要です`

const manualInstruction = `あなたは翻訳者です。

ルール:
- 入力が日本語の場合、英語に翻訳してください
- 入力が日本語以外の場合、日本語に翻訳してください
- 翻訳文のみを返してください。説明や注釈は不要です`

// mode couples an instruction profile with its context and skip policy.
// All three modes share one generation path.
type mode struct {
	instruction string
	useContext  bool
	allowSkip   bool
}

var (
	chatMode          = mode{instruction: chatInstruction, useContext: true, allowSkip: true}
	transcriptionMode = mode{instruction: transcriptionInstruction, useContext: true, allowSkip: true}
	manualMode        = mode{instruction: manualInstruction}
)

// Generator is the single underlying request primitive: prompt text plus a
// fixed instruction profile in, trimmed response text out.
type Generator interface {
	Generate(ctx context.Context, prompt, instruction string) (string, error)
}

// Translator wraps the generation primitive with the three request modes.
type Translator struct {
	gen     Generator
	history HistoryStore
}

// New builds a translator over the given generator and history store.
func New(gen Generator, history HistoryStore) *Translator {
	return &Translator{gen: gen, history: history}
}

// TranslateChat translates a viewer chat message using recent conversation
// for disambiguation. ok is false when the source needs no translation.
func (t *Translator) TranslateChat(ctx context.Context, channel, username, text string) (string, bool, error) {
	prompt := fmt.Sprintf("翻訳対象メッセージ (%s): %s", username, text)
	return t.translate(ctx, chatMode, channel, prompt)
}

// TranslateTranscription translates one of the streamer's utterances.
func (t *Translator) TranslateTranscription(ctx context.Context, channel, text string) (string, bool, error) {
	prompt := "翻訳対象の配信者の発言: " + text
	return t.translate(ctx, transcriptionMode, channel, prompt)
}

// TranslateManual translates ad-hoc text with no conversation context.
func (t *Translator) TranslateManual(ctx context.Context, text string) (string, error) {
	result, _, err := t.translate(ctx, manualMode, "", "翻訳対象: "+text)
	return result, err
}

func (t *Translator) translate(ctx context.Context, m mode, channel, prompt string) (string, bool, error) {
	if m.useContext {
		window, err := t.BuildContext(ctx, channel, time.Now())
		if err != nil {
			return "", false, fmt.Errorf("build context: %w", err)
		}
		prompt = window + prompt
	}

	result, err := t.gen.Generate(ctx, prompt, m.instruction)
	if err != nil {
		return "", false, err
	}

	if m.allowSkip && (result == "" || result == skipSentinel) {
		return "", false, nil
	}
	return result, true, nil
}
