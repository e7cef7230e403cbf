package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/store"
)

// APIHandlers provides HTTP handlers for session and account endpoints.
type APIHandlers struct {
	authService *auth.Service
	hub         *core.Hub
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		hub:         hub,
		log:         logger,
	}
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token   string          `json:"token"`
	Account AccountResponse `json:"account"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	IsPrivileged bool   `json:"is_privileged"`
	Theme        string `json:"theme"`
}

// CreateIdentityRequest represents the privileged account creation body.
type CreateIdentityRequest struct {
	Username     string `json:"username" binding:"required,min=3,max=32"`
	Password     string `json:"password" binding:"required,min=6"`
	DisplayName  string `json:"display_name" binding:"max=64"`
	IsPrivileged bool   `json:"is_privileged"`
}

// ThemeRequest represents the theme update body.
type ThemeRequest struct {
	Theme string `json:"theme" binding:"required"`
}

func accountResponse(a *store.Account) AccountResponse {
	return AccountResponse{
		Username:     a.Username,
		DisplayName:  a.DisplayName,
		IsPrivileged: a.IsPrivileged,
		Theme:        string(a.Theme),
	}
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	token, acct, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		}
		respondError(c, err)
		return
	}

	h.log.Info().Str("username", acct.Username).Msg("user logged in successfully")
	c.JSON(http.StatusOK, AuthResponse{Token: token, Account: accountResponse(acct)})
}

// Me returns the caller's account.
// GET /api/me
func (h *APIHandlers) Me(c *gin.Context) {
	acct, err := h.authService.Account(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accountResponse(acct))
}

// UpdateTheme stores the caller's theme preference.
// PUT /api/me/theme
func (h *APIHandlers) UpdateTheme(c *gin.Context) {
	var req ThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	theme, err := h.authService.UpdateTheme(c.Request.Context(), identityFrom(c), req.Theme)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

// Logout closes every live connection of the caller.
// POST /api/logout
func (h *APIHandlers) Logout(c *gin.Context) {
	identity := identityFrom(c)
	n := h.hub.Logout(identity)
	h.log.Info().Str("identity", identity).Int("connections", n).Msg("user logged out")
	c.JSON(http.StatusOK, gin.H{"closed_connections": n})
}

// CreateIdentity lets a privileged identity create another account.
// POST /api/admin/identities
func (h *APIHandlers) CreateIdentity(c *gin.Context) {
	var req CreateIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create identity request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	requester := identityFrom(c)
	acct, err := h.authService.CreateIdentity(c.Request.Context(), requester, auth.NewAccount{
		Username:     req.Username,
		Password:     req.Password,
		DisplayName:  req.DisplayName,
		IsPrivileged: req.IsPrivileged,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to create identity")
		}
		respondError(c, err)
		return
	}

	h.log.Info().Str("username", acct.Username).Str("by", requester).Bool("privileged", acct.IsPrivileged).Msg("identity created")
	c.JSON(http.StatusCreated, accountResponse(acct))
}
