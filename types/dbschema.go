package types

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// ApActor is a db model of a cached remote actor. Records are replaced
// wholesale on upsert.
type ApActor struct {
	ID                        string         `json:"id" gorm:"primaryKey;type:text"`
	Type                      string         `json:"type" gorm:"type:text"`
	Name                      string         `json:"name" gorm:"type:text"`
	Summary                   string         `json:"summary" gorm:"type:text"`
	Username                  string         `json:"username" gorm:"type:text"`
	Inbox                     string         `json:"inbox" gorm:"type:text"`
	Outbox                    string         `json:"outbox" gorm:"type:text"`
	PublicKeyID               string         `json:"publicKeyID" gorm:"type:text"`
	PublicKeyPem              string         `json:"publicKeyPem" gorm:"type:text"`
	ManuallyApprovesFollowers bool           `json:"manuallyApprovesFollowers" gorm:"type:bool"`
	AlsoKnownAs               pq.StringArray `json:"aliases" gorm:"type:text[]"`
	UpdatedAt                 time.Time      `json:"updatedAt"`
}

// ToActor converts the db record back to the wire model.
func (a ApActor) ToActor() Actor {
	return Actor{
		ID:                a.ID,
		Type:              ActorType(a.Type),
		Name:              a.Name,
		Summary:           a.Summary,
		PreferredUsername: a.Username,
		Inbox:             a.Inbox,
		Outbox:            a.Outbox,
		PublicKey: PublicKey{
			ID:           a.PublicKeyID,
			Owner:        a.ID,
			PublicKeyPem: a.PublicKeyPem,
		},
		ManuallyApprovesFollowers: a.ManuallyApprovesFollowers,
		AlsoKnownAs:               a.AlsoKnownAs,
	}
}

// NewApActor converts a wire actor to its db record.
func NewApActor(actor Actor) ApActor {
	return ApActor{
		ID:                        actor.ID,
		Type:                      string(actor.Type),
		Name:                      actor.Name,
		Summary:                   actor.Summary,
		Username:                  actor.PreferredUsername,
		Inbox:                     actor.Inbox,
		Outbox:                    actor.Outbox,
		PublicKeyID:               actor.PublicKey.ID,
		PublicKeyPem:              actor.PublicKey.PublicKeyPem,
		ManuallyApprovesFollowers: actor.ManuallyApprovesFollowers,
		AlsoKnownAs:               actor.AlsoKnownAs,
	}
}

// ApFollow is a db model of a follow relationship. One row per Follow
// activity, keyed by the remote activity id so Undo can reference the exact
// activity being undone.
type ApFollow struct {
	ID        string `json:"id" gorm:"primaryKey;type:text"`
	FromActor string `json:"fromActor" gorm:"type:text;index"`
	ToActor   string `json:"toActor" gorm:"type:text;index"`
	Status    string `json:"status" gorm:"type:text"`
}

// ApInboxEntry is a db model of a received activity plus its processing
// state. The primary key is store-assigned: remote activity ids are
// attacker-controlled and not unique across senders.
type ApInboxEntry struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Status        string    `json:"status" gorm:"type:text;index"`
	ActivityID    string    `json:"activityID" gorm:"type:text"`
	ActivityActor string    `json:"activityActor" gorm:"type:text"`
	ActivityType  string    `json:"activityType" gorm:"type:text"`
	Payload       string    `json:"payload" gorm:"type:text"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Activity decodes the stored payload back into the wire envelope.
func (e ApInboxEntry) Activity() (Activity, error) {
	var activity Activity
	err := json.Unmarshal([]byte(e.Payload), &activity)
	return activity, err
}

// NewApInboxEntry builds a created-state entry from a raw request body.
func NewApInboxEntry(activity Activity, payload []byte) ApInboxEntry {
	return ApInboxEntry{
		Status:        string(EntryCreated),
		ActivityID:    activity.ID,
		ActivityActor: activity.Actor,
		ActivityType:  activity.Type,
		Payload:       string(payload),
	}
}
