package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/chat"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/messages"
	"github.com/room4-2/gemini-chat/session"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxFrameSize    = 512 * 1024
)

// wsConn is one browser connection attached to a session.
type wsConn struct {
	server *Server
	sess   *session.Session
	conn   *websocket.Conn

	writeChan chan *messages.ServerMessage

	mu        sync.RWMutex
	closed    bool
	closeChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	// A connection without a sessionId owns the session it creates.
	owned := false
	sess, ok := s.sessions.GetSession(r.URL.Query().Get("sessionId"))
	if !ok {
		if r.URL.Query().Get("sessionId") != "" {
			s.rejectConn(conn, messages.ErrCodeSessionNotFound, "session not found")
			return
		}
		sess, err = s.sessions.CreateSession(context.Background())
		if err != nil {
			log.Errorf("Failed to create session: %v", err)
			s.rejectConn(conn, messages.ErrCodeSessionFailed, err.Error())
			return
		}
		owned = true
	}

	c := newWSConn(s, sess, conn)
	unregister := sess.OnClose(c.Close)
	c.start()

	<-c.closeChan
	unregister()

	if owned {
		_ = s.sessions.RemoveSession(context.Background(), sess.ID)
	}
	log.Infof("🔌 [%s] WebSocket closed", sess.Short())
}

func (s *Server) rejectConn(conn *websocket.Conn, code, msg string) {
	if data, err := messages.NewErrorMessage("", code, msg).Encode(); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	conn.Close()
}

func newWSConn(s *Server, sess *session.Session, conn *websocket.Conn) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())

	conn.SetReadLimit(maxFrameSize)
	conn.EnableWriteCompression(true)
	_ = conn.SetCompressionLevel(6)

	return &wsConn{
		server:    s,
		sess:      sess,
		conn:      conn,
		writeChan: make(chan *messages.ServerMessage, writeBufferSize),
		closeChan: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *wsConn) start() {
	go c.writePump()
	c.queueMessage(messages.NewStatusMessage(c.sess.ID, messages.StatusConnected, "Session established"))
	go c.readLoop()
}

// writePump handles all outgoing messages in a single goroutine
func (c *wsConn) writePump() {
	defer func() {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closeChan:
			return
		case msg := <-c.writeChan:
			data, err := msg.Encode()
			if err != nil {
				log.Errorf("❌ [%s] Failed to encode %s message: %v", c.sess.Short(), msg.Type, err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warnf("❌ [%s] Write failed: %v", c.sess.Short(), err)
				go c.Close()
				return
			}
		}
	}
}

// queueMessage adds a message to the write queue without blocking.
func (c *wsConn) queueMessage(msg *messages.ServerMessage) {
	select {
	case <-c.closeChan:
	case c.writeChan <- msg:
	default:
		log.Warnf("⚠️ [%s] Write queue full, dropping %s message", c.sess.Short(), msg.Type)
	}
}

func (c *wsConn) sendError(code, msg string) {
	c.queueMessage(messages.NewErrorMessage(c.sess.ID, code, msg))
}

// Close terminates the connection. It is safe to call more than once.
func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	close(c.closeChan)
}

func (c *wsConn) readLoop() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("❌ [%s] WebSocket read error: %v", c.sess.Short(), err)
			}
			return
		}
		c.sess.Touch()

		// Binary frames are raw microphone PCM, held until end_turn.
		if messageType == websocket.BinaryMessage {
			if err := c.sess.Audio().Append(data); err != nil {
				c.sendError(messages.ErrCodeBufferFull,
					fmt.Sprintf("Audio buffer full (max %d bytes)", c.sess.Audio().MaxSize()))
			}
			continue
		}

		msg, err := messages.DecodeClientMessage(data)
		if err != nil {
			c.sendError(messages.ErrCodeInvalidMessage, "Invalid message format")
			continue
		}
		c.processClientMessage(msg)
	}
}

func (c *wsConn) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case messages.TypeClientText:
		var payload messages.TextPayload
		if err := msg.DecodePayload(&payload); err != nil {
			c.sendError(messages.ErrCodeInvalidMessage, "Invalid text payload")
			return
		}
		c.queueMessage(messages.NewStatusMessage(c.sess.ID, messages.StatusProcessing, ""))
		c.sendOutcome(c.server.chat.HandleText(c.ctx, c.sess, payload.Text))

	case messages.TypeClientConfig:
		var payload messages.ConfigPayload
		if err := msg.DecodePayload(&payload); err != nil {
			c.sendError(messages.ErrCodeInvalidMessage, "Invalid config payload")
			return
		}
		if _, err := applyConfig(c.sess, payload); err != nil {
			c.sendError(errorCode(err), err.Error())
			return
		}
		c.server.sessions.Sync(c.ctx, c.sess)
		c.queueMessage(messages.NewStatusMessage(c.sess.ID, messages.StatusConfig, c.sess.Config().Model))

	case messages.TypeClientControl:
		var payload messages.ControlPayload
		if err := msg.DecodePayload(&payload); err != nil {
			c.sendError(messages.ErrCodeInvalidMessage, "Invalid control payload")
			return
		}
		c.handleControl(payload.Action)

	default:
		c.sendError(messages.ErrCodeInvalidMessage, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (c *wsConn) handleControl(action string) {
	switch action {
	case messages.ActionPing:
		c.queueMessage(messages.NewStatusMessage(c.sess.ID, messages.StatusPong, ""))

	case messages.ActionEndTurn:
		data := c.sess.Audio().Flush()
		if len(data) == 0 {
			c.sendError(messages.ErrCodeEmptyAudio, "No audio recorded")
			return
		}
		log.Infof("🎤 [%s] End of turn: %d bytes of audio", c.sess.Short(), len(data))
		c.queueMessage(messages.NewStatusMessage(c.sess.ID, messages.StatusProcessing, ""))
		clip := audio.Clip{Data: data, Origin: audio.OriginMicrophone}
		c.sendOutcome(c.server.chat.HandleAudio(c.ctx, c.sess, clip))

	case messages.ActionReset:
		c.sess.Reset()
		c.server.sessions.Sync(c.ctx, c.sess)
		c.queueMessage(messages.NewStatusMessage(c.sess.ID, messages.StatusReset, ""))

	default:
		c.sendError(messages.ErrCodeInvalidMessage, fmt.Sprintf("Unknown control action: %s", action))
	}
}

func (c *wsConn) sendOutcome(out chat.Outcome) {
	c.server.sessions.Sync(c.ctx, c.sess)
	if out.Transcript != "" {
		c.queueMessage(messages.NewTranscriptMessage(c.sess.ID, out.Transcript))
	}
	if out.State == chat.Errored {
		c.sendError(errorCode(out.Err), out.UserMessage)
		return
	}
	c.queueMessage(messages.NewTextMessage(c.sess.ID, out.Reply))
	c.queueMessage(messages.NewStatusMessage(c.sess.ID, messages.StatusTurnComplete, ""))
}
