// Package session owns the single active channel: chat ingestion, the
// audio transcription pipeline, and the fan-out of translation results
// back to viewers.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkase/streamlens/backend/internal/audio"
	"github.com/mkase/streamlens/backend/internal/metrics"
	"github.com/mkase/streamlens/backend/internal/model/stream"
)

// Broadcaster delivers one event to every connected viewer.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Replier delivers one event to the viewer that issued a command.
type Replier interface {
	Send(event string, data any)
}

// ChatClient is the chat-protocol collaborator for one channel.
type ChatClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// MessageFunc receives inbound chat lines from the attached client.
type MessageFunc func(channel, username, text string, self bool)

// ChatClientFactory builds a client for the requested channel.
type ChatClientFactory func(channel string, onMessage MessageFunc) ChatClient

// CaptureFactory opens a raw PCM source for the channel's stream audio.
type CaptureFactory func(channel string) (io.ReadCloser, error)

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Translator is the context-windowed translation stage.
type Translator interface {
	TranslateChat(ctx context.Context, channel, username, text string) (string, bool, error)
	TranslateTranscription(ctx context.Context, channel, text string) (string, bool, error)
	TranslateManual(ctx context.Context, text string) (string, error)
}

// Store is the durable collaborator behind persistence and channel history.
type Store interface {
	UpsertChannel(ctx context.Context, name string, ts time.Time) error
	ListChannels(ctx context.Context) ([]string, error)
	InsertMessage(ctx context.Context, channel, username, text string, ts time.Time) (int64, error)
	InsertTranscription(ctx context.Context, channel, text string, ts time.Time) error
}

// Deps wires the manager's collaborators. Transcriber and NewCapture may be
// nil, which disables the audio pipeline but not chat. Translator may be nil,
// which disables translation fan-out.
type Deps struct {
	Store         Store
	Hub           Broadcaster
	Translator    Translator
	Transcriber   Transcriber
	NewChatClient ChatClientFactory
	NewCapture    CaptureFactory
	FramerConfig  audio.FramerConfig
	Metrics       *metrics.Metrics
}

// Manager is the session state machine. At most one chat client and one
// audio pipeline are attached at any time; the mutex makes
// teardown-then-setup atomic against concurrent joins.
type Manager struct {
	store         Store
	hub           Broadcaster
	translator    Translator
	transcriber   Transcriber
	newChatClient ChatClientFactory
	newCapture    CaptureFactory
	framerCfg     audio.FramerConfig
	metrics       *metrics.Metrics

	transcriptionSeq atomic.Int64

	mu      sync.Mutex
	channel string
	chat    ChatClient
	audio   *audioPipeline
}

// NewManager builds an idle session manager.
func NewManager(d Deps) *Manager {
	return &Manager{
		store:         d.Store,
		hub:           d.Hub,
		translator:    d.Translator,
		transcriber:   d.Transcriber,
		newChatClient: d.NewChatClient,
		newCapture:    d.NewCapture,
		framerCfg:     d.FramerConfig,
		metrics:       d.Metrics,
	}
}

// CurrentChannel returns the active channel name, or "" when idle.
func (m *Manager) CurrentChannel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// NormalizeChannel canonicalizes a viewer-supplied channel name. An empty
// result means the command should be ignored.
func NormalizeChannel(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(name, "#")
}

// HandleConnect greets a newly connected viewer with the current session
// state and the known channel list.
func (m *Manager) HandleConnect(c Replier) {
	if name := m.CurrentChannel(); name != "" {
		c.Send("current-channel", map[string]string{"name": name})
	}
	names, err := m.store.ListChannels(context.Background())
	if err != nil {
		log.Printf("[session] list channels: %v", err)
		return
	}
	c.Send("channel-list", names)
}

// HandleCommand dispatches one inbound viewer command. Malformed payloads
// are ignored without an error event.
func (m *Manager) HandleCommand(c Replier, event string, data json.RawMessage) {
	switch event {
	case "join-channel":
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return
		}
		name := NormalizeChannel(raw)
		if name == "" {
			return
		}
		m.Join(context.Background(), name, c)

	case "leave-channel":
		m.Leave(context.Background())

	case "manual-translate":
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return
		}
		text := strings.TrimSpace(raw)
		if text == "" {
			return
		}
		go m.manualTranslate(text, c)
	}
}

// Join tears down any active session and connects to the requested
// channel. A connection failure reverts to idle and reports a
// channel-level error to the requesting viewer only.
func (m *Manager) Join(ctx context.Context, name string, reply Replier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	client := m.newChatClient(name, m.handleChatMessage)
	if err := client.Connect(ctx); err != nil {
		log.Printf("[session] failed to connect to #%s: %v", name, err)
		if reply != nil {
			reply.Send("channel-error", map[string]string{
				"message": fmt.Sprintf("Failed to connect to #%s", name),
			})
		}
		return
	}

	m.chat = client
	m.channel = name
	log.Printf("[session] connected to #%s", name)

	if err := m.store.UpsertChannel(ctx, name, time.Now().UTC()); err != nil {
		log.Printf("[session] record channel %s: %v", name, err)
	}

	m.hub.Broadcast("channel-joined", map[string]string{"name": name})
	m.broadcastChannelList(ctx)

	m.startAudioLocked(name)
}

// Leave stops the audio pipeline first so an open utterance drains, then
// disconnects chat and announces the departure.
func (m *Manager) Leave(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channel == "" && m.chat == nil {
		return
	}
	m.teardownLocked()
	log.Printf("[session] left channel")
	m.hub.Broadcast("channel-left", nil)
}

// teardownLocked detaches the audio pipeline and chat client, swallowing
// disconnect errors so teardown always completes. Callers hold the mutex.
func (m *Manager) teardownLocked() {
	if m.audio != nil {
		m.audio.stop()
		m.audio = nil
	}
	if m.chat != nil {
		_ = m.chat.Disconnect()
		m.chat = nil
	}
	m.channel = ""
}

func (m *Manager) broadcastChannelList(ctx context.Context) {
	names, err := m.store.ListChannels(ctx)
	if err != nil {
		log.Printf("[session] list channels: %v", err)
		return
	}
	m.hub.Broadcast("channel-list", names)
}

// handleChatMessage persists and broadcasts one chat line synchronously,
// then fires its translation without waiting for it.
func (m *Manager) handleChatMessage(channel, username, text string, self bool) {
	if self {
		return
	}

	ctx := context.Background()
	ts := time.Now().UTC()

	id, err := m.store.InsertMessage(ctx, channel, username, text, ts)
	if err != nil {
		log.Printf("[session] persist message: %v", err)
		return
	}

	msg := stream.ChatMessage{ID: id, Channel: channel, Username: username, Message: text, Timestamp: ts}
	log.Printf("[chat] #%s %s: %s", channel, username, text)
	if m.metrics != nil {
		m.metrics.ChatMessages.Inc()
	}
	m.hub.Broadcast("chat-message", msg)

	go m.translateChat(msg)
}

func (m *Manager) translateChat(msg stream.ChatMessage) {
	if m.translator == nil {
		return
	}
	start := time.Now()
	if m.metrics != nil {
		m.metrics.TranslationRequests.WithLabelValues("chat").Inc()
	}

	translation, ok, err := m.translator.TranslateChat(context.Background(), msg.Channel, msg.Username, msg.Message)
	m.observeTranslation("chat", start, ok, err)
	if err != nil {
		log.Printf("[session] translate message %d: %v", msg.ID, err)
		return
	}
	if !ok {
		return
	}
	m.hub.Broadcast("chat-translation", stream.Translation{ID: msg.ID, Translation: translation})
}

// startAudioLocked attaches the transcription pipeline when both the
// transcriber and a capture source are available. Capture failure disables
// transcription for this session but never the session itself.
func (m *Manager) startAudioLocked(channel string) {
	if m.transcriber == nil || m.newCapture == nil {
		return
	}
	capture, err := m.newCapture(channel)
	if err != nil {
		log.Printf("[session] audio capture unavailable for #%s: %v", channel, err)
		return
	}

	p := &audioPipeline{
		manager: m,
		channel: channel,
		capture: capture,
		done:    make(chan struct{}),
	}
	m.audio = p
	go p.run()
	log.Printf("[session] transcription started for #%s", channel)
}

// handleUtterance runs the speech-to-text and translation stages for one
// closed utterance. The transcription id is assigned only once text comes
// back, keeping the counter one-to-one with delivered transcriptions.
func (m *Manager) handleUtterance(channel string, pcm []byte) {
	if m.metrics != nil {
		m.metrics.UtterancesEmitted.Inc()
		m.metrics.TranscriptionRequests.Inc()
	}

	ctx := context.Background()
	wav := audio.EncodeWAV(pcm)

	text, err := m.transcriber.Transcribe(ctx, wav)
	if err != nil {
		if m.metrics != nil {
			m.metrics.TranscriptionFailures.Inc()
		}
		log.Printf("[session] transcribe utterance: %v", err)
		return
	}
	if text == "" {
		return
	}

	ts := time.Now().UTC()
	tr := stream.Transcription{
		ID:        m.transcriptionSeq.Add(1),
		Channel:   channel,
		Text:      text,
		Timestamp: ts,
	}

	if err := m.store.InsertTranscription(ctx, channel, text, ts); err != nil {
		log.Printf("[session] persist transcription: %v", err)
	}

	log.Printf("[transcription] #%s: %s", channel, text)
	m.hub.Broadcast("transcription", tr)

	go m.translateTranscription(tr)
}

func (m *Manager) translateTranscription(tr stream.Transcription) {
	if m.translator == nil {
		return
	}
	start := time.Now()
	if m.metrics != nil {
		m.metrics.TranslationRequests.WithLabelValues("transcription").Inc()
	}

	translation, ok, err := m.translator.TranslateTranscription(context.Background(), tr.Channel, tr.Text)
	m.observeTranslation("transcription", start, ok, err)
	if err != nil {
		log.Printf("[session] translate transcription %d: %v", tr.ID, err)
		return
	}
	if !ok {
		return
	}
	m.hub.Broadcast("transcription-translation", stream.Translation{ID: tr.ID, Translation: translation})
}

func (m *Manager) manualTranslate(text string, reply Replier) {
	if m.translator == nil {
		reply.Send("channel-error", map[string]string{"message": "Translation is not configured"})
		return
	}
	start := time.Now()
	if m.metrics != nil {
		m.metrics.TranslationRequests.WithLabelValues("manual").Inc()
	}

	translation, err := m.translator.TranslateManual(context.Background(), text)
	m.observeTranslation("manual", start, true, err)
	if err != nil {
		log.Printf("[session] manual translate: %v", err)
		return
	}
	reply.Send("manual-translate-result", map[string]string{"text": translation})
}

func (m *Manager) observeTranslation(mode string, start time.Time, ok bool, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.TranslationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.TranslationFailures.WithLabelValues(mode).Inc()
	} else if !ok {
		m.metrics.TranslationSkips.WithLabelValues(mode).Inc()
	}
}

// audioPipeline pumps captured PCM through the framer until the capture
// source fails or the session stops it.
type audioPipeline struct {
	manager *Manager
	channel string
	capture io.ReadCloser
	done    chan struct{}

	closeOnce sync.Once
}

func (p *audioPipeline) run() {
	defer close(p.done)

	// Each utterance is handed off so a slow speech-to-text call never
	// stalls the capture loop.
	framer := audio.NewFramer(p.manager.framerCfg, func(pcm []byte) {
		go p.manager.handleUtterance(p.channel, pcm)
	})

	buf := make([]byte, 4096)
	for {
		n, err := p.capture.Read(buf)
		if n > 0 {
			framer.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}

	// Drain whatever was still open so shutdown loses no speech.
	framer.Flush()
	p.manager.hub.Broadcast("transcription-stopped", nil)
}

// stop closes the capture source and waits for the pump to drain.
func (p *audioPipeline) stop() {
	p.closeOnce.Do(func() { _ = p.capture.Close() })
	<-p.done
}
