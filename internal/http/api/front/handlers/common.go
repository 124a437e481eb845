package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditEngine/internal/http/api/authn"
	"github.com/router-for-me/CreditEngine/internal/outcome"
	log "github.com/sirupsen/logrus"
)

// getUserID returns the authenticated user id, or 0.
func getUserID(c *gin.Context) uint64 {
	if c == nil {
		return 0
	}
	return c.GetUint64(authn.ContextUserID)
}

// parseIDParam reads a positive numeric path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// respond writes a business result with the status derived from its code.
func respond(c *gin.Context, code outcome.Code, payload any) {
	c.JSON(outcome.HTTPStatus(code), payload)
}

// respondError writes a store or internal failure.
func respondError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	message := op + " failed"
	if errors.Is(err, outcome.ErrConflict) {
		status = http.StatusConflict
		message = "request was modified concurrently, please retry"
	}
	log.WithError(err).WithField("op", op).Error("front: request failed")
	c.JSON(status, gin.H{"error": message})
}
