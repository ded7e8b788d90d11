// ABOUTME: HTTP control endpoints for driving the probe remotely
// ABOUTME: Play and stop are accepted asynchronously, state via status/log
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamprobe/streamprobe-go/pkg/probe"
)

// API handles the HTTP control endpoints.
type API struct {
	ctrl *probe.Controller
	hub  *Hub
}

// NewAPI creates the handler set around a controller and event hub.
func NewAPI(ctrl *probe.Controller, hub *Hub) *API {
	return &API{ctrl: ctrl, hub: hub}
}

// PlayRequest is the request body for the play endpoint.
type PlayRequest struct {
	URL string `json:"url" binding:"required"`
}

// CommandResponse acknowledges play and stop commands.
type CommandResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the response for the status endpoint.
type StatusResponse struct {
	State     string `json:"state"`
	Message   string `json:"message,omitempty"`
	URL       string `json:"url,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	LogLen    int    `json:"log_len"`
}

// LogResponse is the response for the log endpoint.
type LogResponse struct {
	Count   int      `json:"count"`
	Entries []string `json:"entries"`
}

// Play queues a playback request. A well-formed request is always
// accepted; a bad URL value surfaces through the session status and the
// diagnostic log, same as one typed into the TUI.
func (a *API) Play(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CommandResponse{
			Status:  "error",
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	a.ctrl.Play(req.URL)
	c.JSON(http.StatusAccepted, CommandResponse{Status: "accepted"})
}

// Stop queues a stop request.
func (a *API) Stop(c *gin.Context) {
	a.ctrl.Stop()
	c.JSON(http.StatusAccepted, CommandResponse{Status: "accepted"})
}

// Status reports the current playback status.
func (a *API) Status(c *gin.Context) {
	snap := a.ctrl.Snapshot()
	c.JSON(http.StatusOK, StatusResponse{
		State:     snap.Status.State.String(),
		Message:   snap.Status.Message,
		URL:       snap.URL,
		SessionID: snap.SessionID,
		LogLen:    len(snap.Entries),
	})
}

// Log returns the full diagnostic log for the current session.
func (a *API) Log(c *gin.Context) {
	entries := a.ctrl.Entries()
	if entries == nil {
		entries = []string{}
	}
	c.JSON(http.StatusOK, LogResponse{Count: len(entries), Entries: entries})
}

// Events upgrades to a WebSocket that streams state snapshots.
func (a *API) Events(c *gin.Context) {
	a.hub.ServeWS(c.Writer, c.Request)
}
