package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	errs "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository interface {
	ResolveConversation(ctx context.Context, userA, userB uint) (*models.Conversation, error)
	TouchConversation(ctx context.Context, id uint, preview string, at *time.Time) error
	ListConversationsForUser(ctx context.Context, userID uint) ([]models.ConversationSummary, error)
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

// ResolveConversation returns the conversation of the unordered pair
// {userA, userB}, creating it on first contact. Concurrent first contacts
// race on the unique pair index and both read back the same row.
func (r *conversationRepo) ResolveConversation(ctx context.Context, userA, userB uint) (*models.Conversation, error) {
	if userA == userB {
		return nil, errs.ErrSelfConversation
	}
	low, high := models.NormalizePair(userA, userB)

	conversation, err := r.findByPair(ctx, low, high)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "find conversation")
	}

	return r.createConversation(ctx, low, high)
}

// createConversation inserts the normalized pair unless a concurrent
// first contact already did, then reads back whichever row won.
func (r *conversationRepo) createConversation(ctx context.Context, low, high uint) (*models.Conversation, error) {
	candidate := &models.Conversation{UserLowID: low, UserHighID: high}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(candidate).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, errors.Wrap(err, "create conversation")
	}

	conversation, err := r.findByPair(ctx, low, high)
	if err != nil {
		return nil, errors.Wrap(err, "fetch conversation")
	}
	return conversation, nil
}

func (r *conversationRepo) findByPair(ctx context.Context, low, high uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.DB.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// TouchConversation records the latest activity. A nil at clears it, which
// happens once the last message of a conversation is deleted.
func (r *conversationRepo) TouchConversation(ctx context.Context, id uint, preview string, at *time.Time) error {
	err := r.DB.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message":    preview,
			"last_message_at": at,
		}).Error
	return errors.Wrap(err, "touch conversation")
}

func (r *conversationRepo) ListConversationsForUser(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	summaries := []models.ConversationSummary{}
	err := r.DB.WithContext(ctx).
		Table("conversations AS c").
		Select(`c.id, c.last_message, c.last_message_at,
			u.id AS peer_id, u.nickname AS peer_nickname, u.online AS peer_online`).
		Joins(`JOIN users AS u ON u.id = CASE WHEN c.user_low_id = ? THEN c.user_high_id ELSE c.user_low_id END`, userID).
		Where("c.user_low_id = ? OR c.user_high_id = ?", userID, userID).
		Order("c.last_message_at IS NULL, c.last_message_at DESC, c.id DESC").
		Scan(&summaries).Error
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return summaries, nil
}
