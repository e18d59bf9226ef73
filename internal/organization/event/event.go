package event

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OrganizationCreatedTopic = "organization.created"
	MemberJoinedTopic        = "member.joined"
	MemberRemovedTopic       = "member.removed"
)

var ErrInvalidEvent = errors.New("invalid_event")

// OutboxEvent is a lifecycle event waiting for an out-of-process consumer.
type OutboxEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID   `gorm:"not null;index" json:"org_id"`
	EventType   string         `gorm:"type:text;not null;index:ix_outbox_pending,priority:1" json:"event_type"`
	Payload     datatypes.JSON `json:"payload"`
	Published   bool           `gorm:"not null;index:ix_outbox_pending,priority:2" json:"published"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

type OrganizationCreated struct {
	OrganizationID string `json:"organization_id"`
	OwnerUserID    string `json:"owner_user_id"`
	Plan           string `json:"plan"`
	CreatedAt      string `json:"created_at"`
}

type MemberJoined struct {
	OrganizationID string `json:"organization_id"`
	MemberID       string `json:"member_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	InvitationID   string `json:"invitation_id,omitempty"`
}

type MemberRemoved struct {
	OrganizationID string `json:"organization_id"`
	MemberID       string `json:"member_id"`
	UserID         string `json:"user_id"`
	RemovedBy      string `json:"removed_by"`
}

type EventPublisher interface {
	Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error
}

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) EventPublisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
		clock: clk,
	}
}

func (p *outboxPublisher) Publish(ctx context.Context, orgID snowflake.ID, topic string, payload any) error {
	topic = strings.TrimSpace(topic)
	if orgID == 0 || topic == "" {
		return ErrInvalidEvent
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.db.WithContext(ctx).Create(&OutboxEvent{
		ID:        p.genID.Generate(),
		OrgID:     orgID,
		EventType: topic,
		Payload:   datatypes.JSON(body),
		Published: false,
		CreatedAt: p.clock.Now(),
	}).Error
}

// Pending returns unpublished events of a topic, oldest first.
func Pending(ctx context.Context, db *gorm.DB, topic string, limit int) ([]OutboxEvent, error) {
	var events []OutboxEvent
	stmt := db.WithContext(ctx).
		Where("event_type = ? AND published = ?", topic, false).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func MarkPublished(ctx context.Context, db *gorm.DB, eventID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Model(&OutboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]any{"published": true, "published_at": now}).Error
}
