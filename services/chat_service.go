package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/techagentng/dmchat/db"
	apiError "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"github.com/techagentng/dmchat/push"
	"go.uber.org/zap"
)

const (
	MaxMessageLength = 4000
	previewLength    = 100
	pushTimeout      = 10 * time.Second
)

type ChatService interface {
	SendMessage(ctx context.Context, senderID uint, request *models.SendMessageRequest) (*models.Message, *apiError.Error)
	ListMessages(ctx context.Context, userID, otherUserID uint) ([]models.Message, *apiError.Error)
	EditMessage(ctx context.Context, messageID, editorID uint, newText string) (*models.Message, *apiError.Error)
	DeleteMessage(ctx context.Context, messageID, requesterID uint) *apiError.Error
	ListContacts(ctx context.Context, userID uint) ([]models.UserResponse, *apiError.Error)
	ListConversations(ctx context.Context, userID uint) ([]models.ConversationSummary, *apiError.Error)
	RegisterDevice(ctx context.Context, userID uint, token string) *apiError.Error
}

type chatService struct {
	authRepo         db.AuthRepository
	conversationRepo db.ConversationRepository
	messageRepo      db.MessageRepository
	deviceRepo       db.DeviceRepository
	deliverer        Deliverer
	notifier         push.Notifier
	logger           *zap.Logger
	now              func() time.Time
}

func NewChatService(
	authRepo db.AuthRepository,
	conversationRepo db.ConversationRepository,
	messageRepo db.MessageRepository,
	deviceRepo db.DeviceRepository,
	deliverer Deliverer,
	notifier push.Notifier,
	logger *zap.Logger,
) ChatService {
	if notifier == nil {
		notifier = push.Nop{}
	}
	return &chatService{
		authRepo:         authRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		deviceRepo:       deviceRepo,
		deliverer:        deliverer,
		notifier:         notifier,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func validateBody(body string) (string, *apiError.Error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apiError.ErrEmptyMessage
	}
	if len([]rune(body)) > MaxMessageLength {
		return "", apiError.Validation("message cant be more than %d characters", MaxMessageLength)
	}
	return body, nil
}

// stamp returns the current time at database precision, strictly after
// prev when prev is set.
func (s *chatService) stamp(prev time.Time) time.Time {
	now := s.now().Truncate(time.Microsecond)
	if !prev.IsZero() && !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (s *chatService) SendMessage(ctx context.Context, senderID uint, request *models.SendMessageRequest) (*models.Message, *apiError.Error) {
	body, apiErr := validateBody(request.Message)
	if apiErr != nil {
		return nil, apiErr
	}
	if request.ReceiverID == 0 {
		return nil, apiError.Validation("receiverId is required")
	}
	if request.ReceiverID == senderID {
		return nil, apiError.ErrSelfConversation
	}

	if _, err := s.authRepo.FindUserByID(ctx, request.ReceiverID); err != nil {
		return nil, toAPIError(s.logger, "find receiver", err)
	}

	conversation, err := s.conversationRepo.ResolveConversation(ctx, senderID, request.ReceiverID)
	if err != nil {
		return nil, toAPIError(s.logger, "resolve conversation", err)
	}
	if !conversation.HasParticipant(senderID) || conversation.Peer(senderID) != request.ReceiverID {
		s.logger.Error("resolved conversation does not match pair",
			zap.Uint("conversation_id", conversation.ID), zap.Uint("sender_id", senderID), zap.Uint("receiver_id", request.ReceiverID))
		return nil, apiError.ErrInternalServerError
	}

	message, err := s.messageRepo.CreateMessage(ctx, &models.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		ReceiverID:     request.ReceiverID,
		Content:        body,
		Timestamp:      s.stamp(time.Time{}),
	})
	if err != nil {
		return nil, toAPIError(s.logger, "create message", err)
	}

	s.touch(ctx, conversation.ID, message)

	receiverOnline := s.deliverer.IsOnline(message.ReceiverID)
	s.deliverer.Deliver(message.Participants(), models.EventNewMessage, message)
	if !receiverOnline {
		go s.notifyOffline(*message)
	}
	return message, nil
}

func (s *chatService) touch(ctx context.Context, conversationID uint, latest *models.Message) {
	var (
		preview string
		at      *time.Time
	)
	if latest != nil {
		preview = lo.Substring(latest.Content, 0, previewLength)
		ts := latest.Timestamp
		at = &ts
	}
	if err := s.conversationRepo.TouchConversation(ctx, conversationID, preview, at); err != nil {
		s.logger.Warn("touch conversation failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
}

// notifyOffline pushes a new message to the receiver's devices. Failures
// are logged only.
func (s *chatService) notifyOffline(message models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	tokens, err := s.deviceRepo.ListDeviceTokens(ctx, message.ReceiverID)
	if err != nil {
		s.logger.Warn("list device tokens failed", zap.Uint("user_id", message.ReceiverID), zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}

	invalid, err := s.notifier.Notify(ctx, tokens, push.Notification{
		Title: message.SenderNickname,
		Body:  lo.Substring(message.Content, 0, previewLength),
		Data: map[string]string{
			"event":     models.EventNewMessage,
			"messageId": strconv.FormatUint(uint64(message.ID), 10),
			"senderId":  strconv.FormatUint(uint64(message.SenderID), 10),
		},
	})
	if err != nil {
		s.logger.Warn("push notification failed", zap.Uint("user_id", message.ReceiverID), zap.Error(err))
	}
	if len(invalid) > 0 {
		if err := s.deviceRepo.DeleteDeviceTokens(ctx, invalid); err != nil {
			s.logger.Warn("delete stale device tokens failed", zap.Error(err))
		}
	}
}

func (s *chatService) ListMessages(ctx context.Context, userID, otherUserID uint) ([]models.Message, *apiError.Error) {
	if otherUserID == userID {
		return nil, apiError.ErrSelfConversation
	}
	if _, err := s.authRepo.FindUserByID(ctx, otherUserID); err != nil {
		return nil, toAPIError(s.logger, "find other user", err)
	}

	conversation, err := s.conversationRepo.ResolveConversation(ctx, userID, otherUserID)
	if err != nil {
		return nil, toAPIError(s.logger, "resolve conversation", err)
	}

	messages, err := s.messageRepo.ListConversationMessages(ctx, conversation.ID)
	if err != nil {
		return nil, toAPIError(s.logger, "list messages", err)
	}
	return messages, nil
}

// ownedMessage loads a message and checks that userID sent it.
func (s *chatService) ownedMessage(ctx context.Context, messageID, userID uint) (*models.Message, *apiError.Error) {
	message, err := s.messageRepo.FindMessageByID(ctx, messageID)
	if err != nil {
		return nil, toAPIError(s.logger, "find message", err)
	}
	if message.SenderID != userID {
		return nil, apiError.ErrForbidden
	}
	return message, nil
}

func (s *chatService) EditMessage(ctx context.Context, messageID, editorID uint, newText string) (*models.Message, *apiError.Error) {
	message, apiErr := s.ownedMessage(ctx, messageID, editorID)
	if apiErr != nil {
		return nil, apiErr
	}
	body, apiErr := validateBody(newText)
	if apiErr != nil {
		return nil, apiErr
	}

	if err := s.messageRepo.UpdateMessageContent(ctx, message.ID, body, s.stamp(message.Timestamp)); err != nil {
		return nil, toAPIError(s.logger, "update message", err)
	}
	updated, err := s.messageRepo.FindMessageByID(ctx, message.ID)
	if err != nil {
		return nil, toAPIError(s.logger, "reload message", err)
	}

	s.refreshConversation(ctx, updated.ConversationID)
	s.deliverer.Deliver(updated.Participants(), models.EventMessageUpdated, updated)
	return updated, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID, requesterID uint) *apiError.Error {
	message, apiErr := s.ownedMessage(ctx, messageID, requesterID)
	if apiErr != nil {
		return apiErr
	}

	if err := s.messageRepo.DeleteMessage(ctx, message.ID); err != nil {
		return toAPIError(s.logger, "delete message", err)
	}

	s.refreshConversation(ctx, message.ConversationID)
	s.deliverer.Deliver(message.Participants(), models.EventMessageDeleted, models.MessageDeleted{
		MessageID:  message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
	})
	return nil
}

// refreshConversation points the conversation preview at its newest
// remaining message.
func (s *chatService) refreshConversation(ctx context.Context, conversationID uint) {
	latest, err := s.messageRepo.LatestMessage(ctx, conversationID)
	if err != nil {
		s.logger.Warn("latest message lookup failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
		return
	}
	s.touch(ctx, conversationID, latest)
}

func (s *chatService) ListContacts(ctx context.Context, userID uint) ([]models.UserResponse, *apiError.Error) {
	users, err := s.authRepo.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, toAPIError(s.logger, "list users", err)
	}
	return lo.Map(users, func(u models.User, _ int) models.UserResponse {
		resp := u.Response()
		resp.Online = s.deliverer.IsOnline(u.ID)
		return resp
	}), nil
}

func (s *chatService) ListConversations(ctx context.Context, userID uint) ([]models.ConversationSummary, *apiError.Error) {
	summaries, err := s.conversationRepo.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, toAPIError(s.logger, "list conversations", err)
	}
	for i := range summaries {
		summaries[i].PeerOnline = s.deliverer.IsOnline(summaries[i].PeerID)
	}
	return summaries, nil
}

func (s *chatService) RegisterDevice(ctx context.Context, userID uint, token string) *apiError.Error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apiError.Validation("token is required")
	}
	if err := s.deviceRepo.SaveDeviceToken(ctx, userID, token); err != nil {
		return toAPIError(s.logger, "save device token", err)
	}
	return nil
}
