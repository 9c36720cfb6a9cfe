// Package twitch is a minimal IRC-over-WebSocket chat client: it joins one
// channel, surfaces PRIVMSG events and answers keepalive pings.
package twitch

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	ircURL         = "wss://irc-ws.chat.twitch.tv:443"
	connectTimeout = 10 * time.Second
)

// MessageHandler receives one chat line. self is true when the line was
// sent by the bot's own login.
type MessageHandler func(channel, username, text string, self bool)

// Client connects to a single Twitch chat channel.
type Client struct {
	channel   string
	login     string
	token     string
	onMessage MessageHandler
	dialer    *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient prepares a client for one channel. With an empty token the
// client falls back to Twitch's anonymous read-only login.
func NewClient(channel, login, token string, onMessage MessageHandler) *Client {
	if login == "" || token == "" {
		login = fmt.Sprintf("justinfan%05d", rand.Intn(100000))
		token = ""
	}
	return &Client{
		channel:   channel,
		login:     strings.ToLower(login),
		token:     token,
		onMessage: onMessage,
		dialer:    &websocket.Dialer{HandshakeTimeout: connectTimeout},
	}
}

// Connect dials the chat endpoint, authenticates and joins the channel. It
// returns once the join is acknowledged or fails. After a successful
// connect the read loop runs until Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, ircURL, nil)
	if err != nil {
		return fmt.Errorf("dial chat: %w", err)
	}

	auth := []string{"CAP REQ :twitch.tv/tags twitch.tv/commands"}
	if c.token != "" {
		auth = append(auth, "PASS oauth:"+strings.TrimPrefix(c.token, "oauth:"))
	}
	auth = append(auth, "NICK "+c.login, "JOIN #"+c.channel)
	for _, line := range auth {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			conn.Close()
			return fmt.Errorf("send login: %w", err)
		}
	}

	if err := c.awaitJoin(conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Disconnect closes the connection. Safe to call twice.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// awaitJoin reads until the channel join is acknowledged (RPL_ENDOFNAMES)
// or the server rejects the login.
func (c *Client) awaitJoin(conn *websocket.Conn) error {
	deadline := time.Now().Add(connectTimeout)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for time.Now().Before(deadline) {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await join: %w", err)
		}
		for _, raw := range strings.Split(string(payload), "\r\n") {
			line := parseLine(raw)
			switch line.command {
			case "366":
				return nil
			case "NOTICE":
				if strings.Contains(line.text, "authentication failed") {
					return fmt.Errorf("chat login rejected: %s", line.text)
				}
			case "PING":
				_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG :"+line.text))
			}
		}
	}
	return fmt.Errorf("timed out joining #%s", c.channel)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Printf("[twitch] read loop ended for #%s: %v", c.channel, err)
			}
			return
		}
		for _, raw := range strings.Split(string(payload), "\r\n") {
			if raw == "" {
				continue
			}
			c.handleLine(conn, parseLine(raw))
		}
	}
}

func (c *Client) handleLine(conn *websocket.Conn, line ircLine) {
	switch line.command {
	case "PING":
		_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG :"+line.text))
	case "PRIVMSG":
		username := line.tags["display-name"]
		if username == "" {
			username = line.nick
		}
		if c.onMessage != nil {
			c.onMessage(line.channel, username, line.text, line.nick == c.login)
		}
	}
}

// ircLine is one parsed IRC protocol line.
type ircLine struct {
	tags    map[string]string
	nick    string
	command string
	channel string
	text    string
}

// parseLine splits a raw IRC line into tags, prefix, command and trailing
// text. Unknown shapes come back with an empty command and are ignored.
func parseLine(raw string) ircLine {
	line := ircLine{tags: map[string]string{}}
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return line
	}

	if strings.HasPrefix(rest, "@") {
		rawTags, remainder, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return line
		}
		for _, pair := range strings.Split(rawTags, ";") {
			key, value, _ := strings.Cut(pair, "=")
			line.tags[key] = unescapeTag(value)
		}
		rest = remainder
	}

	if strings.HasPrefix(rest, ":") {
		prefix, remainder, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return line
		}
		line.nick, _, _ = strings.Cut(prefix, "!")
		rest = remainder
	}

	command, params, _ := strings.Cut(rest, " ")
	line.command = command

	if params != "" {
		if middle, trailing, ok := strings.Cut(params, " :"); ok {
			line.text = trailing
			params = middle
		} else if strings.HasPrefix(params, ":") {
			line.text = params[1:]
			params = ""
		}
		for _, param := range strings.Fields(params) {
			if strings.HasPrefix(param, "#") {
				line.channel = strings.TrimPrefix(param, "#")
			}
		}
	}
	return line
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(value string) string {
	r := strings.NewReplacer(`\:`, ";", `\s`, " ", `\\`, `\`, `\r`, "\r", `\n`, "\n")
	return r.Replace(value)
}
