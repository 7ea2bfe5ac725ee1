package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/ppiankov/truthcast/internal/transcript"
)

// podcastRequest registers a recording. Either units or audio_ref must be set.
type podcastRequest struct {
	ID          string                 `json:"id"`
	OwnerID     string                 `json:"owner_id" binding:"required"`
	Title       string                 `json:"title" binding:"required"`
	AudioRef    string                 `json:"audio_ref"`
	ContentType string                 `json:"content_type"`
	Units       []model.TranscriptUnit `json:"units"`
}

type liveSessionRequest struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id" binding:"required"`
	Title   string `json:"title" binding:"required"`
}

type segmentRequest struct {
	Text             string  `json:"text" binding:"required"`
	StartOffsetMs    int64   `json:"start_offset_ms" binding:"min=0"`
	EndOffsetMs      int64   `json:"end_offset_ms" binding:"min=0"`
	SourceConfidence float64 `json:"source_confidence" binding:"min=0,max=1"`
}

func (r segmentRequest) unit() model.TranscriptUnit {
	return model.TranscriptUnit{
		Text:             r.Text,
		StartOffsetMs:    r.StartOffsetMs,
		EndOffsetMs:      r.EndOffsetMs,
		SourceConfidence: r.SourceConfidence,
	}
}

func (s *Server) createPodcast(c *gin.Context) {
	var req podcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Units) == 0 && req.AudioRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either units or audio_ref is required"})
		return
	}
	if req.AudioRef != "" {
		ct := req.ContentType
		if ct == "" {
			ct = transcript.ContentTypeFor(req.AudioRef)
		}
		if err := transcript.ValidateContentType(ct, s.allowedAudio); err != nil {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
			return
		}
		req.ContentType = ct
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	work := model.NewPodcastWork(req.ID, req.OwnerID, model.PodcastWork{
		Title:       req.Title,
		AudioRef:    req.AudioRef,
		ContentType: req.ContentType,
	})

	var err error
	if len(req.Units) > 0 {
		_, err = s.manager.StartBatch(c.Request.Context(), work, req.Units)
	} else {
		_, err = s.manager.StartVerification(c.Request.Context(), work)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": work.ID, "status": model.StatusQueued})
}

func (s *Server) createLiveSession(c *gin.Context) {
	var req liveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	work := model.NewLiveWork(req.ID, req.OwnerID, req.Title)
	if _, err := s.manager.StartVerification(c.Request.Context(), work); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": work.ID, "status": model.StatusQueued})
}

func (s *Server) pushSegment(c *gin.Context) {
	var req segmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid segment: " + err.Error()})
		return
	}

	claims, err := s.manager.PushSegment(c.Request.Context(), c.Param("id"), req.unit())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if claims == nil {
		claims = []model.ClaimCandidate{}
	}
	c.JSON(http.StatusOK, gin.H{"queued_claims": claims})
}

func (s *Server) endLiveSession(c *gin.Context) {
	work, err := s.manager.EndLiveSession(c.Request.Context(), c.Param("id"))
	if err != nil && work == nil {
		abortWithError(c, err)
		return
	}
	// A failed session still returns its final state
	c.JSON(http.StatusOK, work)
}

func (s *Server) getWork(c *gin.Context) {
	work, err := s.manager.Work(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, work)
}

func (s *Server) getStatus(c *gin.Context) {
	report, err := s.manager.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) listVerdicts(c *gin.Context) {
	verdicts, err := s.manager.Verdicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verdicts": verdicts})
}
