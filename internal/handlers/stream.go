package handlers

import (
	"log"

	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/video-transcription/internal/progress"
)

// StreamHandler pushes batch progress over a WebSocket
type StreamHandler struct {
	tracker *progress.Tracker
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(tracker *progress.Tracker) *StreamHandler {
	return &StreamHandler{
		tracker: tracker,
	}
}

// Handle sends one JSON snapshot per completed job until the batch is done
// or the client goes away.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	updates, unsubscribe := h.tracker.Subscribe()
	defer unsubscribe()

	// The client never sends anything useful; reading only detects close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Printf("Progress stream opened from %s", c.RemoteAddr())

	for {
		select {
		case <-gone:
			log.Printf("Progress stream closed by client")
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if err := c.WriteJSON(progressResponse(s)); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
			if s.Done() {
				c.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch complete"))
				return
			}
		}
	}
}
