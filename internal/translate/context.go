package translate

import (
	"context"
	"strings"
	"time"

	"github.com/mkase/streamlens/backend/internal/model/stream"
)

// ContextHorizon bounds how far back conversation history is pulled when
// assembling a translation context.
const ContextHorizon = 5 * time.Minute

// HistoryStore answers the time-windowed queries behind context assembly.
// Both queries return rows newest first.
type HistoryStore interface {
	RecentMessages(ctx context.Context, channel string, since time.Time) ([]stream.ChatMessage, error)
	RecentTranscriptions(ctx context.Context, channel string, since time.Time) ([]stream.Transcription, error)
}

// BuildContext assembles the rolling conversation window for channel as
// prompt text: recent streamer utterances first, then recent chat, both
// oldest first. Empty sections are omitted; an unset channel yields an
// empty context. The window is recomputed from the store on every call.
func (t *Translator) BuildContext(ctx context.Context, channel string, now time.Time) (string, error) {
	if channel == "" {
		return "", nil
	}
	since := now.Add(-ContextHorizon)

	transcriptions, err := t.history.RecentTranscriptions(ctx, channel, since)
	if err != nil {
		return "", err
	}
	messages, err := t.history.RecentMessages(ctx, channel, since)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if len(transcriptions) > 0 {
		b.WriteString("配信者の最近の発言:\n")
		for i := len(transcriptions) - 1; i >= 0; i-- {
			b.WriteString("配信者: ")
			b.WriteString(transcriptions[i].Text)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	if len(messages) > 0 {
		b.WriteString("最近のチャット:\n")
		for i := len(messages) - 1; i >= 0; i-- {
			b.WriteString(messages[i].Username)
			b.WriteString(": ")
			b.WriteString(messages[i].Message)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
