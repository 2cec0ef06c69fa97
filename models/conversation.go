package models

import "time"

// Conversation is the single thread shared by an unordered pair of users.
// The pair is stored normalized so that (a, b) and (b, a) hit the same row.
type Conversation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserLowID     uint       `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"user_low_id"`
	UserHighID    uint       `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"user_high_id"`
	LastMessage   string     `gorm:"type:text" json:"last_message"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NormalizePair orders two user ids low first.
func NormalizePair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID uint) uint {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

func (c *Conversation) HasParticipant(userID uint) bool {
	return c.UserLowID == userID || c.UserHighID == userID
}

type ConversationSummary struct {
	ID            uint       `json:"id"`
	PeerID        uint       `json:"peer_id"`
	PeerNickname  string     `json:"peer_nickname"`
	PeerOnline    bool       `json:"peer_online"`
	LastMessage   string     `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
}
