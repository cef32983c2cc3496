package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Liergab/peercall/internal/app"
	"github.com/Liergab/peercall/internal/domain"
)

type Handlers struct {
	orch *app.Orchestrator
}

type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

type TopologyRequest struct {
	Topology string `json:"topology"`
}

type UsernameRequest struct {
	Username string `json:"username"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type ChatResponse struct {
	Delivered int `json:"delivered"`
}

type RecordingResponse struct {
	Name    string  `json:"name"`
	Frames  int     `json:"frames"`
	Seconds float64 `json:"seconds"`
	Bytes   int     `json:"bytes"`
}

func (h *Handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Snapshot())
}

func (h *Handlers) toggleAudio(c *gin.Context) {
	c.JSON(http.StatusOK, ToggleResponse{Enabled: h.orch.ToggleAudio()})
}

func (h *Handlers) toggleVideo(c *gin.Context) {
	c.JSON(http.StatusOK, ToggleResponse{Enabled: h.orch.ToggleVideo()})
}

func (h *Handlers) startScreenShare(c *gin.Context) {
	if err := h.orch.StartScreenShare(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sharing": true})
}

func (h *Handlers) stopScreenShare(c *gin.Context) {
	if err := h.orch.StopScreenShare(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sharing": false})
}

func (h *Handlers) setTopology(c *gin.Context) {
	var req TopologyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Topology == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid topology"})
		return
	}
	if err := h.orch.SetTopology(req.Topology); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topology": req.Topology})
}

func (h *Handlers) setUsername(c *gin.Context) {
	var req UsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid username"})
		return
	}
	if err := h.orch.SetUsername(req.Username); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

func (h *Handlers) sendChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid text"})
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Delivered: h.orch.SendChat(req.Text)})
}

func (h *Handlers) startRecording(c *gin.Context) {
	if err := h.orch.StartRecording(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": true})
}

func (h *Handlers) stopRecording(c *gin.Context) {
	res, err := h.orch.StopRecording()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RecordingResponse{
		Name:    res.Name,
		Frames:  res.Frames,
		Seconds: res.Elapsed.Seconds(),
		Bytes:   len(res.Data),
	})
}

func (h *Handlers) recordingFile(c *gin.Context) {
	res := h.orch.LastRecording()
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording available"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+res.Name+`"`)
	c.Data(http.StatusOK, "video/x-msvideo", res.Data)
}

// fail maps orchestrator and validation errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrNotCreator):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrAlreadySharing),
		errors.Is(err, app.ErrNotSharing),
		errors.Is(err, app.ErrRecordingInFlight),
		errors.Is(err, app.ErrNoRecording):
		status = http.StatusConflict
	case errors.Is(err, app.ErrNoScreenSource),
		errors.Is(err, app.ErrNoParticipants),
		errors.Is(err, domain.ErrUnknownTopology),
		errors.Is(err, domain.ErrUsernameEmpty),
		errors.Is(err, domain.ErrUsernameTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
