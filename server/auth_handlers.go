package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	errs "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"github.com/techagentng/dmchat/server/response"
)

func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request models.RegisterRequest
		if err := decode(c, &request); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		user, err := s.AuthService.Register(c.Request.Context(), &request)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "signup successful", http.StatusCreated, user.Response(), nil)
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var loginRequest models.LoginRequest
		if err := decode(c, &loginRequest); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		userResponse, err := s.AuthService.Login(c.Request.Context(), &loginRequest)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "login successful", http.StatusOK, userResponse, nil)
	}
}

func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := c.GetString("access_token")
		user := currentUser(c)
		if accessToken == "" || user == nil {
			respondAndAbort(c, "", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
			return
		}

		if err := s.AuthService.Logout(c.Request.Context(), accessToken, user.ID); err != nil {
			respondAndAbort(c, "logout failed", err.Status, nil, err)
			return
		}
		// live channels go too; their disconnect broadcasts user_offline
		s.Hub.CloseUser(user.ID, websocket.CloseNormalClosure, "logged out")
		response.JSON(c, "logout successful", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.JSON(c, "ok", http.StatusOK, gin.H{"online_users": len(s.Hub.OnlineUsers())}, nil)
	}
}
