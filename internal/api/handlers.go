package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"futures-trailing-bot/internal/auth"
	"futures-trailing-bot/internal/position"
)

const closeTimeout = 30 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	status := s.botAPI.Status()
	code := http.StatusOK
	health := "healthy"
	if !status.Running {
		code = http.StatusServiceUnavailable
		health = "stopped"
	}
	c.JSON(code, gin.H{
		"status": health,
		"symbol": status.Symbol,
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleGetStatus(c *gin.Context) {
	data := gin.H{
		"bot":               s.botAPI.Status(),
		"websocket_clients": s.hub.GetClientCount(),
	}
	if s.breaker != nil {
		data["circuit_breaker"] = s.breaker.GetStats()
	}
	successResponse(c, data)
}

func (s *Server) handleGetPosition(c *gin.Context) {
	successResponse(c, gin.H{
		"state":    s.positions.State(),
		"position": s.positions.Active(),
	})
}

type closeRequest struct {
	Reason string `json:"reason"`
}

// handleClosePosition force-closes the active position with an emergency
// exit.
func (s *Server) handleClosePosition(c *gin.Context) {
	var req closeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	if s.positions.Active() == nil {
		errorResponse(c, http.StatusConflict, "no open position")
		return
	}
	if s.positions.State() == position.StateClosing {
		errorResponse(c, http.StatusConflict, "position is already closing")
		return
	}

	reason := "operator"
	if r := strings.TrimSpace(req.Reason); r != "" {
		reason = "operator: " + r
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), closeTimeout)
	defer cancel()

	s.logger.Warn().Str("subject", auth.GetSubject(c)).Str("reason", reason).Msg("Operator close requested")
	if err := s.positions.EmergencyExit(ctx, reason); err != nil {
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}

	successResponse(c, gin.H{
		"state":    s.positions.State(),
		"position": s.positions.Active(),
	})
}

func (s *Server) handleResetCircuitBreaker(c *gin.Context) {
	if s.breaker == nil {
		errorResponse(c, http.StatusNotFound, "circuit breaker is not configured")
		return
	}
	s.breaker.ForceReset()
	s.logger.Info().Str("subject", auth.GetSubject(c)).Msg("Circuit breaker reset by operator")
	successResponse(c, s.breaker.GetStats())
}
