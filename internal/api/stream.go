package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/session"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// streamFrame is every server-to-client message on the segment stream
type streamFrame struct {
	Type    string                 `json:"type"` // claims, verdict, error, ended
	Claims  []model.ClaimCandidate `json:"claims,omitempty"`
	Verdict *model.Verdict         `json:"verdict,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// wsWriter serializes writes; gorilla connections allow one concurrent writer
type wsWriter struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (w *wsWriter) send(f streamFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.ws.WriteJSON(f)
}

// streamSegments accepts transcript units as JSON frames and pushes back the
// queued claims and every verdict of the session as it resolves
func (s *Server) streamSegments(c *gin.Context) {
	id := c.Param("id")
	h, ok := s.manager.Handle(id)
	if !ok || h.Live() == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "live session not found"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("work_id", id), zap.Error(err))
		return
	}
	defer ws.Close()

	log := s.logger.With(zap.String("work_id", id))
	log.Info("segment stream connected")

	out := &wsWriter{ws: ws}
	verdicts, release := h.Live().Subscribe()
	defer release()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for v := range verdicts {
			v := v
			if err := out.send(streamFrame{Type: "verdict", Verdict: &v}); err != nil {
				return
			}
		}
		_ = out.send(streamFrame{Type: "ended"})
		// Unblock the reader once the session is over
		_ = ws.SetReadDeadline(time.Now())
	}()

	ctx := c.Request.Context()
	for {
		var req segmentRequest
		if err := ws.ReadJSON(&req); err != nil {
			log.Info("segment stream closed", zap.Error(err))
			break
		}
		if req.Text == "" {
			if err := out.send(streamFrame{Type: "error", Error: "text is required"}); err != nil {
				break
			}
			continue
		}

		claims, err := s.manager.PushSegment(ctx, id, req.unit())
		if err != nil {
			_ = out.send(streamFrame{Type: "error", Error: err.Error()})
			if errors.Is(err, session.ErrSessionEnded) || errors.Is(err, session.ErrSessionNotFound) {
				break
			}
			continue
		}
		if err := out.send(streamFrame{Type: "claims", Claims: claims}); err != nil {
			break
		}
	}

	release()
	wg.Wait()
}
