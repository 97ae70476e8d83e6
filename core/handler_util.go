package core

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondErrorRedirect adds the navigation target the browser should follow.
func respondErrorRedirect(c *gin.Context, status int, code, message, redirect string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message, "redirect": redirect}})
}

// respondUpstreamError maps auth and expense errors onto the unified payload.
func respondUpstreamError(c *gin.Context, err error) {
	var authErr *AuthFailureError
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrInvalidEmail):
		respondError(c, http.StatusBadRequest, "INVALID_EMAIL", UserMessage(err))
	case errors.Is(err, ErrWeakPassword):
		respondError(c, http.StatusBadRequest, "WEAK_PASSWORD", UserMessage(err))
	case errors.Is(err, ErrInvalidExpense):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrRequestInFlight):
		respondError(c, http.StatusConflict, "REQUEST_IN_FLIGHT", UserMessage(err))
	case errors.Is(err, ErrIncompleteSession):
		respondError(c, http.StatusBadGateway, "AUTH_FAILED", genericFailureMessage)
	case errors.Is(err, ErrNotLoggedIn):
		respondErrorRedirect(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required", LoginPath)
	case errors.As(err, &authErr):
		respondError(c, authFailureStatus(authErr.Status), "AUTH_FAILED", authErr.Message)
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusUnauthorized:
			respondErrorRedirect(c, http.StatusUnauthorized, "UNAUTHORIZED", apiErr.Message, LoginPath)
		case http.StatusNotFound:
			respondError(c, http.StatusNotFound, "NOT_FOUND", apiErr.Message)
		default:
			respondError(c, http.StatusBadGateway, "UPSTREAM_ERROR", apiErr.Message)
		}
	case errors.Is(err, ErrTransport):
		respondError(c, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", genericFailureMessage)
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", genericFailureMessage)
	}
}

// authFailureStatus passes upstream 4xx through; anything else is a bad gateway.
func authFailureStatus(upstream int) int {
	if upstream >= 400 && upstream < 500 {
		return upstream
	}
	return http.StatusBadGateway
}
