package models

import "time"

// Message is one text message from SenderID to ReceiverID. Timestamp is
// assigned by the server on create and moved forward on every edit.
type Message struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ConversationID   uint      `gorm:"not null;index" json:"conversation_id"`
	SenderID         uint      `gorm:"not null;index" json:"sender_id"`
	ReceiverID       uint      `gorm:"not null;index" json:"receiver_id"`
	Content          string    `gorm:"type:text;not null" json:"message"`
	Timestamp        time.Time `gorm:"not null;index" json:"timestamp"`
	Edited           bool      `gorm:"not null;default:false" json:"edited"`
	CreatedAt        time.Time `json:"created_at"`
	SenderNickname   string    `gorm:"->;-:migration" json:"sender_nickname"`
	ReceiverNickname string    `gorm:"->;-:migration" json:"receiver_nickname"`
}

// Participants returns sender and receiver, in that order.
func (m *Message) Participants() []uint {
	return []uint{m.SenderID, m.ReceiverID}
}

type SendMessageRequest struct {
	ReceiverID uint   `json:"receiverId" binding:"required"`
	Message    string `json:"message" conform:"trim"`
}

type EditMessageRequest struct {
	NewMessageText string `json:"newMessageText" conform:"trim"`
}

type MessageDeleted struct {
	MessageID  uint `json:"messageId"`
	SenderID   uint `json:"senderId"`
	ReceiverID uint `json:"receiverId"`
}
