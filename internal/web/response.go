// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package web is the HTTP boundary of the auth service, built on gin.
package web

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/pkg/errutil"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Codes for failures raised by the HTTP layer itself.
const (
	CodeBadRequest  = "HTTP_BAD_REQUEST"
	CodeRateLimited = "HTTP_RATE_LIMITED"
	CodeNotFound    = "HTTP_NOT_FOUND"
)

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func abortWith(c *gin.Context, status int, body ErrorBody) {
	c.AbortWithStatusJSON(status, Envelope{Error: &body})
}

func badRequest(c *gin.Context, message string) {
	abortWith(c, http.StatusBadRequest, ErrorBody{Code: CodeBadRequest, Message: message})
}

// statusFor maps an error kind to its HTTP status and client-facing message.
func statusFor(kind auth.ErrorKind) (int, string) {
	switch kind {
	case auth.KindAlreadyExists:
		return http.StatusConflict, "an account with that username or email already exists"
	case auth.KindInvalidCredentials:
		return http.StatusUnauthorized, "invalid email or password"
	case auth.KindEmailNotVerified:
		return http.StatusForbidden, "email address not verified"
	case auth.KindInvalidToken:
		return http.StatusUnauthorized, "invalid token"
	case auth.KindExpired:
		return http.StatusUnauthorized, "token expired"
	case auth.KindAlreadyVerified:
		return http.StatusConflict, "email address already verified"
	case auth.KindSubjectGone:
		return http.StatusUnauthorized, "account no longer exists"
	case auth.KindForbidden:
		return http.StatusForbidden, "insufficient permissions"
	case auth.KindMissingCredential:
		return http.StatusUnauthorized, "authentication required"
	case auth.KindInvalidInput:
		return http.StatusBadRequest, "invalid input"
	case auth.KindStoreUnavailable:
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case auth.KindInternal, auth.KindNone:
		return http.StatusInternalServerError, "internal server error"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError renders err and aborts the request. Store and internal failures
// are logged with their full oops context; the client sees a generic message.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := auth.KindOf(err)
	status, message := statusFor(kind)
	body := ErrorBody{Code: kind.Code(), Message: message}

	switch kind {
	case auth.KindInvalidInput:
		body.Message, body.Field = inputProblem(err)
	case auth.KindMissingCredential, auth.KindInvalidToken, auth.KindExpired, auth.KindSubjectGone:
		c.Header("WWW-Authenticate", auth.BearerScheme)
	case auth.KindStoreUnavailable, auth.KindInternal, auth.KindNone:
		errutil.LogErrorContext(c.Request.Context(), logger, "request failed", err,
			"method", c.Request.Method,
			"route", c.FullPath())
	}
	abortWith(c, status, body)
}

// inputProblem extracts the validation message and offending field from an
// InvalidInput error.
func inputProblem(err error) (message, field string) {
	message = strings.TrimSuffix(err.Error(), ": "+auth.ErrInvalidInput.Error())
	if oopsErr, ok := oops.AsOops(err); ok {
		if f, ok := oopsErr.Context()["field"].(string); ok {
			field = f
		}
	}
	return message, field
}
