package models

import "time"

// NotificationType categorises a notification
type NotificationType string

const (
	NotificationClubJoined        NotificationType = "CLUB_JOINED"
	NotificationMemberRoleChanged NotificationType = "MEMBER_ROLE_CHANGED"
	NotificationMemberRemoved     NotificationType = "MEMBER_REMOVED"
	NotificationEventRegistered   NotificationType = "EVENT_REGISTERED"
	NotificationEventUnregistered NotificationType = "EVENT_UNREGISTERED"
	NotificationEventCancelled    NotificationType = "EVENT_CANCELLED"
	NotificationEventUpdated      NotificationType = "EVENT_UPDATED"
	NotificationGeneral           NotificationType = "GENERAL"
)

// Notification is a message stored for a user
type Notification struct {
	ID              uint             `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	UserID          uint             `gorm:"not null;index" json:"user_id"`
	Title           string           `gorm:"size:200" json:"title"`
	Message         string           `gorm:"size:1000;not null" json:"message"`
	Type            NotificationType `gorm:"type:varchar(30);not null;default:'GENERAL'" json:"type"`
	RelatedEntityID *uint            `json:"related_entity_id,omitempty"`
	SentAt          time.Time        `gorm:"not null;index" json:"sent_at"`
	Read            bool             `gorm:"not null;default:false" json:"read"`
}
