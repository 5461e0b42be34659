package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/nexlead/prism/id"
	"github.com/nexlead/prism/inbox"
	"github.com/nexlead/prism/internal/entity"
	"github.com/nexlead/prism/projection"
)

// --- Inbox event models ---

type inboxEventModel struct {
	grove.BaseModel `grove:"table:prism_inbox"`

	ID                  string          `grove:"id,pk"                  bson:"_id"`
	EventID             string          `grove:"event_id,unique"        bson:"event_id"`
	DeliveryID          string          `grove:"delivery_id"            bson:"delivery_id"`
	EventType           string          `grove:"event_type"             bson:"event_type"`
	Source              string          `grove:"source"                 bson:"source,omitempty"`
	Payload             json.RawMessage `grove:"payload"                bson:"payload,omitempty"`
	OccurredAt          *time.Time      `grove:"occurred_at"            bson:"occurred_at,omitempty"`
	ReceivedAt          time.Time       `grove:"received_at"            bson:"received_at"`
	Processing          bool            `grove:"processing"             bson:"processing"`
	ProcessingStartedAt *time.Time      `grove:"processing_started_at"  bson:"processing_started_at,omitempty"`
	LastHeartbeat       *time.Time      `grove:"last_heartbeat"         bson:"last_heartbeat,omitempty"`
	Processed           bool            `grove:"processed"              bson:"processed"`
	ProcessedAt         *time.Time      `grove:"processed_at"           bson:"processed_at,omitempty"`
	Attempts            int             `grove:"attempts"               bson:"attempts"`
	LastError           string          `grove:"last_error"             bson:"last_error,omitempty"`
	DeadLettered        bool            `grove:"dead_lettered"          bson:"dead_lettered"`
	CreatedAt           time.Time       `grove:"created_at"             bson:"created_at"`
	UpdatedAt           time.Time       `grove:"updated_at"             bson:"updated_at"`
}

func fromInboxEventModel(m *inboxEventModel) (*inbox.Event, error) {
	recordID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse inbox record ID %q: %w", m.ID, err)
	}

	return &inbox.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  recordID,
		EventID:             m.EventID,
		DeliveryID:          m.DeliveryID,
		EventType:           m.EventType,
		Source:              m.Source,
		Payload:             m.Payload,
		OccurredAt:          m.OccurredAt,
		ReceivedAt:          m.ReceivedAt,
		Processing:          m.Processing,
		ProcessingStartedAt: m.ProcessingStartedAt,
		LastHeartbeat:       m.LastHeartbeat,
		Processed:           m.Processed,
		ProcessedAt:         m.ProcessedAt,
		Attempts:            m.Attempts,
		LastError:           m.LastError,
		DeadLettered:        m.DeadLettered,
	}, nil
}

// --- Projected user models ---

type projectedUserModel struct {
	grove.BaseModel `grove:"table:prism_users"`

	// The external user id is the natural key; it doubles as _id so the
	// guarded upsert's duplicate-key stale signal rides on the primary
	// index.
	ExternalUserID      string     `grove:"id,pk"                   bson:"_id"`
	Name                *string    `grove:"name"                    bson:"name,omitempty"`
	Email               *string    `grove:"email"                   bson:"email,omitempty"`
	Phone               *string    `grove:"phone"                   bson:"phone,omitempty"`
	AvatarURL           *string    `grove:"avatar_url"              bson:"avatar_url,omitempty"`
	Deleted             bool       `grove:"deleted"                 bson:"deleted"`
	DeletedAt           *time.Time `grove:"deleted_at"              bson:"deleted_at,omitempty"`
	PIIScrubbed         bool       `grove:"pii_scrubbed"            bson:"pii_scrubbed"`
	LastEventOccurredAt *time.Time `grove:"last_event_occurred_at"  bson:"last_event_occurred_at,omitempty"`
	CreatedAt           time.Time  `grove:"created_at"              bson:"created_at"`
	UpdatedAt           time.Time  `grove:"updated_at"              bson:"updated_at"`
}

func fromProjectedUserModel(m *projectedUserModel) *projection.User {
	return &projection.User{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ExternalUserID:      m.ExternalUserID,
		Name:                m.Name,
		Email:               m.Email,
		Phone:               m.Phone,
		AvatarURL:           m.AvatarURL,
		Deleted:             m.Deleted,
		DeletedAt:           m.DeletedAt,
		PIIScrubbed:         m.PIIScrubbed,
		LastEventOccurredAt: m.LastEventOccurredAt,
	}
}
