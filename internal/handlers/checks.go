package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pulsekeep/internal/models"
	"pulsekeep/internal/services"
)

const defaultProject = "default"

func projectID(c *gin.Context) string {
	if id := c.GetHeader("X-Project-ID"); id != "" {
		return id
	}
	return defaultProject
}

// checkRequest is the write shape for checks. Durations are seconds.
type checkRequest struct {
	Name         *string  `json:"name"`
	Tags         *string  `json:"tags"`
	Kind         *string  `json:"kind"`
	Timeout      *int64   `json:"timeout"`
	Grace        *int64   `json:"grace"`
	Schedule     *string  `json:"schedule"`
	Tz           *string  `json:"tz"`
	ManualResume *bool    `json:"manual_resume"`
	Channels     []string `json:"channels"`
}

func (r *checkRequest) params() services.CheckParams {
	p := services.CheckParams{
		Name:         r.Name,
		Tags:         r.Tags,
		Schedule:     r.Schedule,
		Tz:           r.Tz,
		ManualResume: r.ManualResume,
		Channels:     r.Channels,
	}
	if r.Kind != nil {
		kind := models.CheckKind(*r.Kind)
		p.Kind = &kind
	}
	if r.Timeout != nil {
		d := time.Duration(*r.Timeout) * time.Second
		p.Timeout = &d
	}
	if r.Grace != nil {
		d := time.Duration(*r.Grace) * time.Second
		p.Grace = &d
	}
	return p
}

// checkView augments the stored check with its effective status.
func checkView(check *models.Check) gin.H {
	status := check.Status
	if current, err := check.CurrentStatus(time.Now()); err == nil {
		status = current
	}
	return gin.H{
		"check":  check,
		"status": status,
	}
}

func (h *Handlers) CreateCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", err.Error()))
		return
	}

	check, err := h.checkService.CreateCheck(c.Request.Context(), projectID(c), req.params())
	if err != nil {
		h.logger.Error("failed to create check", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse("create_failed", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse("check_created", checkView(check)))
}

func (h *Handlers) GetCheck(c *gin.Context) {
	code := c.Param("code")

	check, err := h.checkService.GetCheck(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("failed to get check", "error", err, "check", code)
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get check"))
		return
	}
	if check == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Check not found"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("check_found", checkView(check)))
}

func (h *Handlers) ListChecks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	checks, err := h.checkService.ListChecks(c.Request.Context(), projectID(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list checks", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse("list_failed", "Failed to list checks"))
		return
	}

	views := make([]gin.H, 0, len(checks))
	for _, check := range checks {
		views = append(views, checkView(check))
	}
	c.JSON(http.StatusOK, SuccessResponse("checks_listed", gin.H{
		"checks": views,
		"count":  len(views),
	}))
}

func (h *Handlers) UpdateCheck(c *gin.Context) {
	code := c.Param("code")

	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("invalid_request", err.Error()))
		return
	}

	check, err := h.checkService.UpdateCheck(c.Request.Context(), code, req.params())
	if errors.Is(err, services.ErrCheckNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Check not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to update check", "error", err, "check", code)
		c.JSON(http.StatusBadRequest, ErrorResponse("update_failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("check_updated", checkView(check)))
}

func (h *Handlers) PauseCheck(c *gin.Context) {
	code := c.Param("code")

	check, err := h.checkService.PauseCheck(c.Request.Context(), code)
	if errors.Is(err, services.ErrCheckNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Check not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to pause check", "error", err, "check", code)
		c.JSON(http.StatusConflict, ErrorResponse("pause_failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("check_paused", checkView(check)))
}

func (h *Handlers) ResumeCheck(c *gin.Context) {
	code := c.Param("code")

	check, err := h.checkService.ResumeCheck(c.Request.Context(), code)
	if errors.Is(err, services.ErrCheckNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Check not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to resume check", "error", err, "check", code)
		c.JSON(http.StatusConflict, ErrorResponse("resume_failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("check_resumed", checkView(check)))
}

func (h *Handlers) DeleteCheck(c *gin.Context) {
	code := c.Param("code")

	err := h.checkService.DeleteCheck(c.Request.Context(), code)
	if errors.Is(err, services.ErrCheckNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Check not found"))
		return
	}
	if err != nil {
		h.logger.Error("failed to delete check", "error", err, "check", code)
		c.JSON(http.StatusInternalServerError, ErrorResponse("delete_failed", "Failed to delete check"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("check_deleted", nil))
}

func (h *Handlers) ListPings(c *gin.Context) {
	code := c.Param("code")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	check, err := h.checkService.GetCheck(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get check"))
		return
	}
	if check == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Check not found"))
		return
	}

	pings, err := h.checkService.ListPings(c.Request.Context(), code, limit)
	if err != nil {
		h.logger.Error("failed to list pings", "error", err, "check", code)
		c.JSON(http.StatusInternalServerError, ErrorResponse("list_failed", "Failed to list pings"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("pings_listed", gin.H{
		"pings": pings,
		"count": len(pings),
	}))
}

func (h *Handlers) ListFlips(c *gin.Context) {
	code := c.Param("code")

	since := time.Now().AddDate(0, -3, 0)
	if raw := c.Query("seconds"); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
			since = time.Now().Add(-time.Duration(secs) * time.Second)
		}
	}

	check, err := h.checkService.GetCheck(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse("get_failed", "Failed to get check"))
		return
	}
	if check == nil {
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", "Check not found"))
		return
	}

	flips, err := h.checkService.ListFlips(c.Request.Context(), code, since)
	if err != nil {
		h.logger.Error("failed to list flips", "error", err, "check", code)
		c.JSON(http.StatusInternalServerError, ErrorResponse("list_failed", "Failed to list flips"))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse("flips_listed", gin.H{
		"flips": flips,
		"count": len(flips),
	}))
}
