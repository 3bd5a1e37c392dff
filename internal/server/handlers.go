package server

import (
	"bytes"
	"net/http"
	"strconv"

	"capillaire/internal/diagnosis"
	"capillaire/internal/export"
	"capillaire/internal/planner"
	"capillaire/internal/progress"

	"github.com/gin-gonic/gin"
)

type handlers struct {
	deps Deps
}

// PlanResponse is a plan with its progress figures.
type PlanResponse struct {
	Plan            planner.Plan     `json:"plan"`
	ProgressPercent float64          `json:"progress_percent"`
	CurrentDay      int              `json:"current_day"`
	Today           *planner.DayTask `json:"today,omitempty"`
}

type tipRequest struct {
	Problem   string               `json:"problem" binding:"required"`
	Diagnosis *diagnosis.Diagnosis `json:"diagnosis,omitempty"`
}

func (h *handlers) planResponse(p planner.Plan) PlanResponse {
	now := h.deps.Now()
	resp := PlanResponse{
		Plan:            p,
		ProgressPercent: progress.ProgressPercent(p),
		CurrentDay:      progress.CurrentDay(p, now),
	}
	if t, ok := progress.TodayTask(p, now); ok {
		resp.Today = &t
	}
	return resp
}

func (h *handlers) loadPlan(c *gin.Context) (*planner.Plan, bool) {
	s := currentSession(c)
	plan, err := h.deps.Plans.LoadLatestPlan(c.Request.Context(), s.UserID)
	if err != nil {
		h.fail(c, err, http.StatusBadGateway, "Failed to load plan")
		return nil, false
	}
	if plan == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No plan yet", "code": http.StatusNotFound})
		return nil, false
	}
	return plan, true
}

func (h *handlers) getPlan(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.planResponse(*plan))
}

func (h *handlers) exportPlan(c *gin.Context) {
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.Render(&buf, *plan, h.deps.ExportTaskCount, h.deps.Now()); err != nil {
		h.fail(c, err, http.StatusInternalServerError, "Failed to export plan")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(*plan)+`"`)
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *handlers) toggleTask(c *gin.Context) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil || day < 1 || day > planner.TotalDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'day' must be an integer between 1 and 30", "code": http.StatusBadRequest})
		return
	}
	plan, ok := h.loadPlan(c)
	if !ok {
		return
	}
	if _, found := plan.Task(day); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "No task for that day", "code": http.StatusNotFound})
		return
	}

	updated := progress.ToggleTask(*plan, day)
	if _, err := h.deps.Plans.UpsertPlan(c.Request.Context(), currentSession(c).UserID, updated); err != nil {
		h.fail(c, err, http.StatusBadGateway, "Failed to save plan")
		return
	}
	c.JSON(http.StatusOK, h.planResponse(updated))
}

func (h *handlers) getSubscription(c *gin.Context) {
	active, err := h.deps.Subscriptions.HasActiveSubscription(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.fail(c, err, http.StatusBadGateway, "Failed to check subscription")
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}

func (h *handlers) postDiagnosis(c *gin.Context) {
	if h.deps.Generator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Generation disabled", "code": http.StatusServiceUnavailable})
		return
	}
	var d diagnosis.Diagnosis
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: " + err.Error(), "code": http.StatusBadRequest})
		return
	}
	if d.WashFrequency == "" {
		d.WashFrequency = diagnosis.DefaultWashFrequency
	}
	if err := d.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": http.StatusBadRequest})
		return
	}

	plan, err := h.deps.Generator.GeneratePlan(c.Request.Context(), d)
	if err != nil {
		status := http.StatusBadGateway
		if kind, _ := planner.KindOf(err); kind == planner.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		h.fail(c, err, status, "Failed to generate plan")
		return
	}

	if _, err := h.deps.Plans.UpsertPlan(c.Request.Context(), currentSession(c).UserID, *plan); err != nil {
		h.deps.Logger.Warnf("Warning: generated plan %s not saved: %v", plan.ID, err)
	}
	c.JSON(http.StatusCreated, h.planResponse(*plan))
}

func (h *handlers) postTip(c *gin.Context) {
	if h.deps.Tipper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Tips disabled", "code": http.StatusServiceUnavailable})
		return
	}
	var body tipRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: " + err.Error(), "code": http.StatusBadRequest})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tip": h.deps.Tipper.FastTip(c.Request.Context(), body.Problem, body.Diagnosis)})
}

func (h *handlers) fail(c *gin.Context, err error, status int, msg string) {
	requestID := c.GetString(ctxRequestID)
	h.deps.Logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
	h.deps.Collectors.CountStoreError(err)
	c.JSON(status, gin.H{"error": msg + ": " + err.Error(), "code": status})
}
