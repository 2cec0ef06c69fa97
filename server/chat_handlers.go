package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"github.com/techagentng/dmchat/server/response"
)

// uintParam reads a positive numeric path parameter.
func uintParam(c *gin.Context, name string) (uint, *errs.Error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errs.ErrInvalidID
	}
	return uint(id), nil
}

func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		contacts, err := s.ChatService.ListContacts(c.Request.Context(), user.ID)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "users retrieved", http.StatusOK, contacts, nil)
	}
}

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		summaries, err := s.ChatService.ListConversations(c.Request.Context(), user.ID)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "conversations retrieved", http.StatusOK, summaries, nil)
	}
}

func (s *Server) handleGetMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		otherUserID, err := uintParam(c, "otherUserId")
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		messages, err := s.ChatService.ListMessages(c.Request.Context(), user.ID, otherUserID)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "messages retrieved", http.StatusOK, messages, nil)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		var request models.SendMessageRequest
		if err := decode(c, &request); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		message, err := s.ChatService.SendMessage(c.Request.Context(), user.ID, &request)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "message sent", http.StatusCreated, message, nil)
	}
}

func (s *Server) handleEditMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		messageID, err := uintParam(c, "messageId")
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		var request models.EditMessageRequest
		if err := decode(c, &request); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		message, err := s.ChatService.EditMessage(c.Request.Context(), messageID, user.ID, request.NewMessageText)
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "message updated", http.StatusOK, message, nil)
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		messageID, err := uintParam(c, "messageId")
		if err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		if err := s.ChatService.DeleteMessage(c.Request.Context(), messageID, user.ID); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "message deleted", http.StatusOK, gin.H{"messageId": messageID}, nil)
	}
}

func (s *Server) handleRegisterDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		var request models.DeviceTokenRequest
		if err := decode(c, &request); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		if err := s.ChatService.RegisterDevice(c.Request.Context(), user.ID, request.Token); err != nil {
			response.JSON(c, "", err.Status, nil, err)
			return
		}
		response.JSON(c, "device registered", http.StatusCreated, nil, nil)
	}
}
