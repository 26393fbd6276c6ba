package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/0xcro3dile/ragchat/internal/logger"
)

const (
	chatModeSync   = "sync"
	chatModeStream = "stream"
	closeTimeout   = time.Second
)

// Message is the chat request and response body.
type Message struct {
	Content string `json:"content"`
}

func newUpgrader(origins originPolicy) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins.allows(origin)
		},
	}
}

func (s *Server) handleChat(c *gin.Context) {
	var msg Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.chat.Query(c.Request.Context(), msg.Content)
	s.observeChat(chatModeSync, err)
	if err != nil {
		internalError(c, "chat query failed", err)
		return
	}
	c.JSON(http.StatusOK, Message{Content: answer})
}

// handleChatWS reads one prompt, streams one text frame per fragment and
// closes with 1000. Any failure closes with 1001.
func (s *Server) handleChatWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		_ = c.Error(err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	log := logger.FromContext(ctx)

	err = s.streamChat(ctx, conn)
	s.observeChat(chatModeStream, err)
	code := websocket.CloseNormalClosure
	if err != nil {
		log.Warn("chat stream failed", "error", err)
		code = websocket.CloseGoingAway
	}
	msg := websocket.FormatCloseMessage(code, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout)); err != nil {
		log.Debug("failed to send close frame", "error", err)
	}
}

func (s *Server) streamChat(ctx context.Context, conn *websocket.Conn) error {
	_, prompt, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	tokens, err := s.chat.QueryStream(ctx, string(prompt))
	if err != nil {
		return err
	}
	for tok := range tokens {
		if tok.Error != nil {
			return tok.Error
		}
		if tok.Done {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tok.Content)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) observeChat(mode string, err error) {
	if s.metrics != nil {
		s.metrics.ChatQuery(mode, err)
	}
}
