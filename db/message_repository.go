package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	errs "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"gorm.io/gorm"
)

type MessageRepository interface {
	CreateMessage(ctx context.Context, message *models.Message) (*models.Message, error)
	FindMessageByID(ctx context.Context, id uint) (*models.Message, error)
	ListConversationMessages(ctx context.Context, conversationID uint) ([]models.Message, error)
	UpdateMessageContent(ctx context.Context, id uint, content string, at time.Time) error
	DeleteMessage(ctx context.Context, id uint) error
	LatestMessage(ctx context.Context, conversationID uint) (*models.Message, error)
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

// withNicknames selects messages joined with both participants' nicknames.
func (r *messageRepo) withNicknames(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).
		Model(&models.Message{}).
		Select("messages.*, s.nickname AS sender_nickname, rc.nickname AS receiver_nickname").
		Joins("JOIN users AS s ON s.id = messages.sender_id").
		Joins("JOIN users AS rc ON rc.id = messages.receiver_id")
}

func (r *messageRepo) CreateMessage(ctx context.Context, message *models.Message) (*models.Message, error) {
	if err := r.DB.WithContext(ctx).Create(message).Error; err != nil {
		return nil, errors.Wrap(err, "create message")
	}
	return r.FindMessageByID(ctx, message.ID)
}

func (r *messageRepo) FindMessageByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.withNicknames(ctx).Where("messages.id = ?", id).Take(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "find message")
	}
	return &message, nil
}

// ListConversationMessages returns the history oldest first. Messages with
// equal timestamps keep insertion order.
func (r *messageRepo) ListConversationMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.withNicknames(ctx).
		Where("messages.conversation_id = ?", conversationID).
		Order("messages.timestamp ASC, messages.id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return messages, nil
}

func (r *messageRepo) UpdateMessageContent(ctx context.Context, id uint, content string, at time.Time) error {
	result := r.DB.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"timestamp": at,
			"edited":    true,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "update message")
	}
	if result.RowsAffected == 0 {
		return errs.ErrMessageNotFound
	}
	return nil
}

func (r *messageRepo) DeleteMessage(ctx context.Context, id uint) error {
	result := r.DB.WithContext(ctx).Delete(&models.Message{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete message")
	}
	if result.RowsAffected == 0 {
		return errs.ErrMessageNotFound
	}
	return nil
}

// LatestMessage returns nil, nil when the conversation has no messages.
func (r *messageRepo) LatestMessage(ctx context.Context, conversationID uint) (*models.Message, error) {
	var messages []models.Message
	err := r.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp DESC, id DESC").
		Limit(1).
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "latest message")
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}
