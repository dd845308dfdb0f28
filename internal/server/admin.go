package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calmisko/gatepipe/internal/config"
)

// rateLimitRule is the wire shape of a configured rate limit rule.
type rateLimitRule struct {
	Scope    string `json:"scope"`
	Requests int    `json:"requests"`
	Window   string `json:"window"`
	Burst    int    `json:"burst,omitempty"`
}

// handleHealth reports the gateway health. The status code is always
// 200 while the process serves; degraded upstreams show up in the body
// so probes do not pull the whole gateway out of rotation over a
// single backend.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipeline.Load().Health())
}

// handleListRoutes lists the route table, optionally filtered by
// tenant.
func (s *Server) handleListRoutes(c *gin.Context) {
	routes := s.pipeline.Load().ListRoutes(c.Query("tenant"))
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// handleAddRoute registers a route from the request body.
func (s *Server) handleAddRoute(c *gin.Context) {
	var cfg config.RouteConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_route",
			"message": err.Error(),
		})
		return
	}

	if err := s.pipeline.Load().AddRoute(cfg); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "route_rejected",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// handleRemoveRoute unregisters the route named by the path parameter.
func (s *Server) handleRemoveRoute(c *gin.Context) {
	if err := s.pipeline.Load().RemoveRoute(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "route_not_found",
			"message": err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleRateLimitRules lists the active rate limit rules.
func (s *Server) handleRateLimitRules(c *gin.Context) {
	rules := s.pipeline.Load().RateLimitRules()
	out := make([]rateLimitRule, 0, len(rules))
	for i := 0; i < len(rules); i++ {
		out = append(out, rateLimitRule{
			Scope:    string(rules[i].Scope),
			Requests: rules[i].Requests,
			Window:   rules[i].Window.String(),
			Burst:    rules[i].Burst,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

// handleResetRateLimits clears rate limit state. With an id query
// parameter only that client resets, otherwise everything does.
func (s *Server) handleResetRateLimits(c *gin.Context) {
	if err := s.pipeline.Load().ResetRateLimits(c.Request.Context(), c.Query("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "reset_failed",
			"message": err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleStats reports the aggregate traffic snapshot.
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipeline.Load().Metrics())
}
