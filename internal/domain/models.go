// Package domain defines the persistence models for conversations, messages,
// partner profiles and blocks. These types are mapped with GORM and are also
// the wire shapes consumed by the client-side chat pipeline.
package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Conversation is a one-to-one chat between two users. The pair is stored in
// canonical order (UserA < UserB) so that a pair maps to exactly one row.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserA / UserB: participant ids, canonical order, unique as a pair.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM. UpdatedAt is bumped
//     whenever a message is appended.
//   - DeletedAt: soft deletion marker.
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserA     string         `json:"user_a"     gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:1;index"`
	UserB     string         `json:"user_b"     gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:2;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Has reports whether userID participates in the conversation.
func (c Conversation) Has(userID string) bool {
	return userID != "" && (c.UserA == userID || c.UserB == userID)
}

// PartnerOf returns the other participant from userID's point of view, or ""
// when userID is not part of the conversation.
func (c Conversation) PartnerOf(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

// CanonicalPair orders two user ids the way conversations store them.
func CanonicalPair(a, b string) (string, string) {
	if strings.Compare(a, b) > 0 {
		return b, a
	}
	return a, b
}

// Message is a single chat message. Server-confirmed messages carry a
// server-issued UUID; messages created optimistically on the client carry a
// temporary id until the confirmed copy replaces them.
//
// CreatedAt is the display sort key. IsRead/ReadAt are owned by the server and
// describe whether the recipient has read the message.
type Message struct {
	ID             string         `json:"id"              gorm:"type:varchar(64);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	SenderID       string         `json:"sender_id"       gorm:"type:varchar(64);not null"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	IsRead         bool           `json:"is_read"         gorm:"not null;default:false"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the owning conversation. Messages are cascade-deleted
	// with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Partner is the public language-exchange profile of a user, used for
// discovery. Languages holds comma-separated BCP 47 tags (e.g. "nl,en-GB").
type Partner struct {
	ID        string         `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name      string         `json:"name"       gorm:"type:varchar(120);not null"`
	AvatarURL string         `json:"avatar_url" gorm:"type:varchar(512)"`
	Languages string         `json:"languages"  gorm:"type:varchar(255);not null;default:''"`
	Interests string         `json:"interests"  gorm:"type:text"`
	Lat       float64        `json:"lat"`
	Lon       float64        `json:"lon"`
	Online    bool           `json:"online"     gorm:"not null;default:false"`
	Available bool           `json:"available"  gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Partner.
func (Partner) TableName() string { return "partners" }

// LanguageList splits Languages into trimmed, non-empty tags.
func (p Partner) LanguageList() []string {
	if strings.TrimSpace(p.Languages) == "" {
		return nil
	}
	parts := strings.Split(p.Languages, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Block records that BlockerID blocked BlockedID. A blocked partner cannot
// receive messages from the blocker. The pair is unique.
type Block struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	BlockerID string    `json:"blocker_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_block_pair,priority:1"`
	BlockedID string    `json:"blocked_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_block_pair,priority:2;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Block.
func (Block) TableName() string { return "blocks" }
