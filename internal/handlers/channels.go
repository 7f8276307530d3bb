package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsekeep/internal/models"
	"pulsekeep/internal/services"
)

func (h *Handlers) CreateChannel(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Kind  string `json:"kind" binding:"required"`
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", "Kind and value are required"))
		return
	}

	channel, err := h.channelService.CreateChannel(c.Request.Context(), projectID(c),
		req.Name, models.ChannelKind(req.Kind), req.Value)
	if err != nil {
		h.logger.Error("failed to create channel", "error", err, "kind", req.Kind)
		c.JSON(http.StatusBadRequest, ErrorResponse("create_failed", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse("channel_created", gin.H{
		"channel": channel,
	}))
}

func (h *Handlers) ListChannels(c *gin.Context) {
	channels, err := h.channelService.ListChannels(c.Request.Context(), projectID(c))
	if err != nil {
		h.logger.Error("failed to list channels", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("list_failed", "Failed to list channels"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("channels_listed", gin.H{
		"channels": channels,
		"count":    len(channels),
	}))
}

func (h *Handlers) GetChannel(c *gin.Context) {
	code := c.Param("code")

	channel, err := h.channelService.GetChannel(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("failed to get channel", "error", err, "channel", code)
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get channel"))
		return
	}
	if channel == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Channel not found"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("channel_found", gin.H{
		"channel": channel,
	}))
}

func (h *Handlers) DeleteChannel(c *gin.Context) {
	code := c.Param("code")

	err := h.channelService.DeleteChannel(c.Request.Context(), code)
	if errors.Is(err, services.ErrChannelNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Channel not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to delete channel", "error", err, "channel", code)
		c.JSON(http.StatusInternalServerError, ErrorResponse("delete_failed", "Failed to delete channel"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("channel_deleted", nil))
}

// TestChannel sends a synthetic notification through the channel.
func (h *Handlers) TestChannel(c *gin.Context) {
	code := c.Param("code")

	err := h.channelService.SendTest(c.Request.Context(), code)
	if errors.Is(err, services.ErrChannelNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Channel not found"))
		return
	}
	if err != nil {
		h.logger.Warn("test delivery failed", "error", err, "channel", code)
		c.JSON(http.StatusBadGateway, ErrorResponse("test_failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("test_sent", nil))
}
