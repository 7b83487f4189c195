package web

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"vermithor/chat"
	"vermithor/completion"
	"vermithor/logger"
)

type chatRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type pageData struct {
	Title        string
	Icon         string
	Models       []chat.Model
	DefaultModel chat.Model
	Messages     []completion.Message
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleIndex(c *gin.Context) {
	msgs, err := s.chat.History(c.Request.Context(), sessionID(c))
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "Failed to load chat history")
		return
	}

	catalog := s.chat.Catalog()
	c.HTML(http.StatusOK, "index.html", pageData{
		Title:        s.opts.Title,
		Icon:         s.opts.Icon,
		Models:       catalog.All(),
		DefaultModel: catalog.Default(),
		Messages:     msgs,
	})
}

func (s *Server) handleModels(c *gin.Context) {
	catalog := s.chat.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"default": catalog.Default().ID,
		"models":  catalog.All(),
	})
}

func (s *Server) handleMessages(c *gin.Context) {
	msgs, err := s.chat.History(c.Request.Context(), sessionID(c))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chat history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.chat.Reset(c.Request.Context(), sessionID(c)); err != nil {
		if errors.Is(err, chat.ErrSessionBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset chat history"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleChat relays the answer as server-sent events: one delta event per
// fragment, then either an error event carrying the user-facing message or a
// done event carrying the full answer. Request errors detected before the first
// fragment are answered with a plain JSON status instead.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse chat request"})
		logger.Debugf("Failed to parse chat request: %s", err)
		return
	}

	sid := sessionID(c)
	started := false
	startStream := func() {
		if started {
			return
		}
		started = true
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}
	emit := func(event string, data any) {
		startStream()
		c.Render(-1, sse.Event{Event: event, Data: data})
		c.Writer.Flush()
	}

	answer, err := s.chat.Send(c.Request.Context(), sid, req.Model, req.Prompt, func(fragment string) error {
		emit("delta", gin.H{"content": fragment})
		return c.Request.Context().Err()
	})
	if err != nil {
		if !started {
			if status, ok := requestErrorStatus(err); ok {
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
		}
		if c.Request.Context().Err() != nil {
			logger.Debugf("Session %s: client went away mid answer", sid)
			return
		}
		logger.Errorf("Session %s: chat failed: %s", sid, err)
		emit("error", gin.H{"message": completion.UserMessage(err)})
		return
	}

	emit("done", gin.H{"content": answer})
}

func requestErrorStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, chat.ErrEmptyPrompt), errors.Is(err, chat.ErrUnknownModel):
		return http.StatusBadRequest, true
	case errors.Is(err, chat.ErrSessionBusy):
		return http.StatusConflict, true
	}
	return 0, false
}
