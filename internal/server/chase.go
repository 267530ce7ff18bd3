package server

import (
	chasedomain "github.com/chasedesk/chasedesk/internal/chase/domain"
	"github.com/gin-gonic/gin"
)

type chaseResultResponse struct {
	Sent   bool   `json:"sent"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// @Summary      Expedite Chase
// @Description  Immediately evaluate one invoice, bypassing pause and interval gates (never the cap)
// @Tags         chase
// @Produce      json
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  map[string]any
// @Router       /invoices/{id}/chase [post]
func (s *Server) ExpediteChase(c *gin.Context) {
	id, err := parseInvoiceID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.chaseSvc.EvaluateByID(c.Request.Context(), id, chasedomain.EvaluateOptions{
		BypassPaused:   true,
		BypassInterval: true,
	})
	if err != nil && result == nil {
		AbortWithError(c, err)
		return
	}

	resp := chaseResultResponse{Sent: result.Sent, State: string(result.State), Reason: result.Reason}
	if err != nil {
		// Collaborator failure: the operator gets immediate feedback.
		resp.Reason = err.Error()
	}
	respondData(c, resp)
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

// @Summary      Pause Chasing
// @Description  Pause or resume chase emails for one invoice
// @Tags         chase
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Invoice ID"
// @Success      200  {object}  map[string]any
// @Router       /invoices/{id}/pause [post]
func (s *Server) PauseChase(c *gin.Context) {
	id, err := parseInvoiceID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.chaseSvc.Pause(c.Request.Context(), id, req.Paused); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"paused": req.Paused})
}

// @Summary      Run Chase Batch
// @Description  Run one on-demand batch over all eligible invoices
// @Tags         chase
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /chase/run [post]
func (s *Server) RunBatch(c *gin.Context) {
	result, err := s.sched.RunBatch(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}
	respondData(c, gin.H{
		"candidates": result.Candidates,
		"sent":       result.Sent,
		"failed":     result.Failed,
		"conflicts":  result.Conflicts,
		"skipped":    result.Skipped,
	})
}
