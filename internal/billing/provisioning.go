package billing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/clock"
	orgdomain "github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/organization/event"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const batchSize = 50

// Provisioner drains organization.created events and reconciles the
// organization's member limit with its plan.
type Provisioner struct {
	db    *gorm.DB
	log   *zap.Logger
	plans Plans
	clock clock.Clock
}

func NewProvisioner(db *gorm.DB, log *zap.Logger, plans Plans, clk clock.Clock) *Provisioner {
	return &Provisioner{
		db:    db,
		log:   log.Named("billing.provisioning"),
		plans: plans,
		clock: clk,
	}
}

// ProcessPending handles one batch and returns how many events were published.
func (c *Provisioner) ProcessPending(ctx context.Context) (int, error) {
	events, err := event.Pending(ctx, c.db, event.OrganizationCreatedTopic, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, evt := range events {
		if err := c.processEvent(ctx, evt); err != nil {
			c.log.Error("failed to provision organization", zap.Error(err), zap.String("organization_id", evt.OrgID.String()))
			continue
		}
		processed++
	}
	return processed, nil
}

func (c *Provisioner) processEvent(ctx context.Context, evt event.OutboxEvent) error {
	var payload event.OrganizationCreated
	if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
		return err
	}
	if payload.OrganizationID == "" {
		return errors.New("missing organization_id")
	}
	orgID, err := snowflake.ParseString(payload.OrganizationID)
	if err != nil {
		return err
	}

	now := c.clock.Now()
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org orgdomain.Organization
		err := tx.Where("id = ?", orgID).First(&org).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.log.Warn("organization gone before provisioning", zap.String("organization_id", orgID.String()))
		case err != nil:
			return err
		default:
			limits := c.plans.Limits(ctx, org.SubscriptionPlan)
			if org.MaxMembers != limits.MaxMembers {
				if err := tx.Model(&orgdomain.Organization{}).
					Where("id = ?", orgID).
					Updates(map[string]any{"max_members": limits.MaxMembers, "updated_at": now}).Error; err != nil {
					return err
				}
			}
		}

		return event.MarkPublished(ctx, tx, evt.ID, now)
	})
}
