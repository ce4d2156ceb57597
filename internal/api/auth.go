package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/prizewheel/internal/auth"
)

type (
	LoginRequest struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	LoginResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
)

func (a *API) Login(c *gin.Context) {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}

	resp, err := a.auth.Login(c.Request.Context(), auth.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusOK, LoginResponse{Token: resp.Token, ExpiresAt: resp.ExpiresAt})
}

// RequireAdmin rejects requests without a valid bearer token.
func (a *API) RequireAdmin(c *gin.Context) {
	token, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")

	sub, err := a.auth.Verify(c.Request.Context(), token)
	if err != nil {
		fail(c, err)
		return
	}

	c.Set("admin", sub)
	c.Next()
}
