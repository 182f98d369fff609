// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/codesnip/codesnip/internal/auth"
)

// AccountService is the session manager as seen by the HTTP layer.
// *auth.Service implements it.
type AccountService interface {
	Register(ctx context.Context, username, email, password string) (*auth.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, subjectID ulid.ULID) error
	RevokeSessions(ctx context.Context, subjectID ulid.ULID) (int64, error)
	VerifyEmail(ctx context.Context, token string) (*auth.Identity, error)
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, subjectID ulid.ULID, currentPassword, newPassword string) error
	UpdateProfile(ctx context.Context, subjectID ulid.ULID, update auth.ProfileUpdate) (*auth.Identity, error)
}

var _ AccountService = (*auth.Service)(nil)

// IdentityView is the public projection of an identity. The password hash never leaves the server.
type IdentityView struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	Role       string    `json:"role"`
	Avatar     string    `json:"avatar,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func viewOf(identity *auth.Identity) IdentityView {
	return IdentityView{
		ID:         identity.ID.String(),
		Username:   identity.Username,
		Email:      identity.Email,
		IsVerified: identity.IsVerified,
		Role:       string(identity.Role),
		Avatar:     identity.Avatar,
		CreatedAt:  identity.CreatedAt,
	}
}

// TokensView carries a token pair.
type TokensView struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func tokensOf(p *auth.TokenPair) TokensView {
	return TokensView{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type profileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Avatar   *string `json:"avatar"`
}

// AuthHandler serves the /api/v1/auth and /api/v1/admin routes.
type AuthHandler struct {
	svc    AccountService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AccountService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, logger: logger}
}

// bind decodes the JSON body into req, answering 400 on failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request body")
		return false
	}
	return true
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, "registered, check your email to verify your address", gin.H{
		"user":            viewOf(res.Identity),
		"accessToken":     res.AccessToken,
		"accessExpiresAt": res.AccessExpiresAt,
	})
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "logged in", gin.H{
		"user":   viewOf(res.Identity),
		"tokens": tokensOf(&res.Tokens),
	})
}

// Refresh handles POST /refresh-token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"tokens": tokensOf(pair)})
}

// Logout handles POST /logout. Every session of the caller is revoked.
func (h *AuthHandler) Logout(c *gin.Context) {
	identity := mustIdentity(c)
	if err := h.svc.Logout(c.Request.Context(), identity.ID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "logged out", nil)
}

// Me handles GET /me.
func (h *AuthHandler) Me(c *gin.Context) {
	respond(c, http.StatusOK, "", gin.H{"user": viewOf(mustIdentity(c))})
}

// Session handles GET /session. It reports whether the caller is signed in
// and never fails authentication.
func (h *AuthHandler) Session(c *gin.Context) {
	identity, signedIn := CurrentIdentity(c)
	data := gin.H{"authenticated": signedIn}
	if signedIn {
		data["user"] = viewOf(identity)
	}
	respond(c, http.StatusOK, "", data)
}

// VerifyEmail handles POST /verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req) {
		return
	}
	identity, err := h.svc.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "email verified", gin.H{"user": viewOf(identity)})
}

// ResendVerification handles POST /resend-verification. The response does not
// reveal whether the email is registered.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ResendVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusAccepted, "if the address is registered and unverified, a verification email is on its way", nil)
}

// ForgotPassword handles POST /forgot-password. The response does not reveal
// whether the email is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusAccepted, "if the address is registered, a password reset email is on its way", nil)
}

// ResetPassword handles POST /reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "password reset, sign in with your new password", nil)
}

// UpdateProfile handles PUT /profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if !bind(c, &req) {
		return
	}
	identity, err := h.svc.UpdateProfile(c.Request.Context(), mustIdentity(c).ID, auth.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Avatar:   req.Avatar,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "profile updated", gin.H{"user": viewOf(identity)})
}

// ChangePassword handles POST /change-password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}
	err := h.svc.ChangePassword(c.Request.Context(), mustIdentity(c).ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "password changed, sign in again", nil)
}

// RevokeSessions handles POST /api/v1/admin/users/:id/revoke-sessions.
func (h *AuthHandler) RevokeSessions(c *gin.Context) {
	id, err := ulid.ParseStrict(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid user id")
		return
	}
	n, err := h.svc.RevokeSessions(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.InfoContext(c.Request.Context(), "sessions revoked by admin",
		"identity_id", id.String(),
		"admin_id", mustIdentity(c).ID.String(),
		"revoked", n)
	respond(c, http.StatusOK, "sessions revoked", gin.H{"revoked": n})
}

// mustIdentity returns the identity attached by RequireAuth. Routes using it
// are always mounted behind RequireAuth.
func mustIdentity(c *gin.Context) *auth.Identity {
	identity, ok := CurrentIdentity(c)
	if !ok {
		panic("web: handler mounted without RequireAuth")
	}
	return identity
}
