package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dexpaper-trading-bot/internal/engine"

	"github.com/gin-gonic/gin"
)

// userStatus is one user's slice of the /status payload
type userStatus struct {
	InFlight  bool                `json:"in_flight"`
	LastCycle *engine.CycleResult `json:"last_cycle,omitempty"`
}

// cronAuthMiddleware guards the cycle trigger with the shared scheduler
// secret. The compare is constant-time; an unset secret disables the
// trigger outright.
func (s *Server) cronAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cronSecret == "" {
			errorResponse(c, http.StatusServiceUnavailable, "cycle trigger disabled: no cron secret configured")
			c.Abort()
			return
		}

		got := c.GetHeader("X-Cron-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cronSecret)) != 1 {
			errorResponse(c, http.StatusUnauthorized, "invalid cron secret")
			c.Abort()
			return
		}

		c.Next()
	}
}

// handleTriggerCycle runs one cycle for the user named in the query, or a
// full pass over the configured users when no user is given. The call is
// synchronous so the scheduler sees failures in the response.
func (s *Server) handleTriggerCycle(c *gin.Context) {
	ctx := c.Request.Context()

	if user := c.Query("user"); user != "" {
		if !s.knownUser(user) {
			errorResponse(c, http.StatusNotFound, fmt.Sprintf("unknown user %q", user))
			return
		}

		result, err := s.manager.RunUser(ctx, user)
		if err != nil {
			if errors.Is(err, engine.ErrCycleInFlight) {
				errorResponse(c, http.StatusConflict, err.Error())
				return
			}
			errorResponse(c, http.StatusInternalServerError, err.Error())
			return
		}

		successResponse(c, result)
		return
	}

	successResponse(c, s.manager.RunAll(ctx))
}

// handleStatus reports the active regime and each configured user's last
// cycle outcome
func (s *Server) handleStatus(c *gin.Context) {
	users := make(map[string]userStatus, len(s.users))
	results := s.manager.Results()
	for _, id := range s.users {
		users[id] = userStatus{
			InFlight:  s.manager.InFlight(id),
			LastCycle: results[id],
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"regime": s.manager.CurrentRegime(),
		"users":  users,
	})
}

// handleHealthz returns service health based on a storage ping
func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"storage": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"storage": "healthy",
	})
}

func (s *Server) knownUser(id string) bool {
	for _, u := range s.users {
		if u == id {
			return true
		}
	}
	return false
}
