package stream

import "time"

// ChatMessage is one inbound chat line for the active channel. The ID is
// assigned by the store at insert time and is durable across restarts.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Channel   string    `json:"channel"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcription is one finished utterance of the streamer's speech. The ID
// is a process-local counter and resets on restart.
type Transcription struct {
	ID        int64     `json:"id"`
	Channel   string    `json:"channel"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel records a previously joined channel and when it was last active.
type Channel struct {
	Name            string    `json:"name"`
	LastConnectedAt time.Time `json:"lastConnectedAt"`
}

// Translation pairs an asynchronous translation result with the chat message
// or transcription it belongs to. Never persisted.
type Translation struct {
	ID          int64  `json:"id"`
	Translation string `json:"translation"`
}
