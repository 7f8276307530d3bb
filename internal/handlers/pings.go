package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pulsekeep/internal/models"
	"pulsekeep/internal/services"
	"pulsekeep/pkg/uuidutil"
)

// Ping handles the plain success ping.
func (h *Handlers) Ping(c *gin.Context) {
	h.handlePing(c, models.ActionSuccess, nil)
}

// PingStart marks the start of a job run.
func (h *Handlers) PingStart(c *gin.Context) {
	h.handlePing(c, models.ActionStart, nil)
}

// PingFail signals an explicit failure.
func (h *Handlers) PingFail(c *gin.Context) {
	h.handlePing(c, models.ActionFail, nil)
}

// PingLog records the ping without affecting the check's state.
func (h *Handlers) PingLog(c *gin.Context) {
	h.handlePing(c, models.ActionIgn, nil)
}

// PingExitStatus treats exit code 0 as success and anything else as a
// failure, mirroring shell semantics.
func (h *Handlers) PingExitStatus(c *gin.Context) {
	exitStatus, err := strconv.Atoi(c.Param("exitstatus"))
	if err != nil || exitStatus < 0 || exitStatus > 255 {
		c.String(http.StatusBadRequest, "invalid exit status")
		return
	}

	action := models.ActionSuccess
	if exitStatus != 0 {
		action = models.ActionFail
	}
	h.handlePing(c, action, &exitStatus)
}

func (h *Handlers) handlePing(c *gin.Context, action models.PingAction, exitStatus *int) {
	code := c.Param("code")
	if !uuidutil.IsValid(code) {
		c.String(http.StatusNotFound, "not found")
		return
	}

	var body string
	if c.Request.Body != nil {
		data, _ := io.ReadAll(io.LimitReader(c.Request.Body, h.maxPingBodySize))
		body = string(data)
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}

	req := services.PingRequest{
		Action:     action,
		Scheme:     scheme,
		RemoteAddr: c.ClientIP(),
		Method:     c.Request.Method,
		UserAgent:  c.Request.UserAgent(),
		Body:       body,
		ExitStatus: exitStatus,
	}

	_, err := h.pingService.OnPing(c.Request.Context(), code, req)
	if errors.Is(err, services.ErrCheckNotFound) {
		c.String(http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to process ping", "check", code, "error", err)
		c.String(http.StatusInternalServerError, "error")
		return
	}

	c.Header("Access-Control-Allow-Origin", "*")
	c.String(http.StatusOK, "OK")
}
