package projector

import (
	"context"
	"time"

	"github.com/nexlead/prism/inbox"
	"github.com/nexlead/prism/payload"
	"github.com/nexlead/prism/projection"
)

// applyUserUpsert folds a user.created or user.updated event into the
// projection. Only fields present in the payload are written; the
// projection store's guard rejects the write if a newer event already
// advanced the record's high-water mark.
func (p *Projector) applyUserUpsert(ctx context.Context, evt *inbox.Event) error {
	c, err := payload.Extract(evt.Payload)
	if err != nil {
		return err
	}

	occurred := c.OccurredAt
	if occurred == nil {
		occurred = evt.OccurredAt
	}

	applied, err := p.projection.ApplyUpsert(ctx, projection.Upsert{
		ExternalUserID: c.ExternalUserID,
		Name:           c.Name,
		Email:          c.Email,
		Phone:          c.Phone,
		AvatarURL:      c.AvatarURL,
		OccurredAt:     occurred,
	})
	if err != nil {
		return err
	}

	if !applied {
		p.logger.DebugContext(ctx, "stale upsert skipped",
			"event_id", evt.EventID, "external_user_id", c.ExternalUserID)
	}

	return nil
}

// applyUserDeleted tombstones the user: deleted and pii_scrubbed set, every
// PII field unset, identity key and deletion time retained so downstream
// joins and audit survive.
func (p *Projector) applyUserDeleted(ctx context.Context, evt *inbox.Event) error {
	c, err := payload.Extract(evt.Payload)
	if err != nil {
		return err
	}

	occurred := c.OccurredAt
	if occurred == nil {
		occurred = evt.OccurredAt
	}

	deletedAt := time.Now().UTC()
	if occurred != nil {
		deletedAt = *occurred
	}

	applied, err := p.projection.ApplyTombstone(ctx, projection.Tombstone{
		ExternalUserID: c.ExternalUserID,
		DeletedAt:      deletedAt,
		OccurredAt:     occurred,
	})
	if err != nil {
		return err
	}

	if !applied {
		p.logger.DebugContext(ctx, "stale tombstone skipped",
			"event_id", evt.EventID, "external_user_id", c.ExternalUserID)
	}

	return nil
}
