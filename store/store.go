package store

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atrium-social/atrium/types"
)

var tracer = otel.Tracer("store")

// Store is a repository for the federation engine's three persistence
// contracts: actors, follows and inbox entries.
type Store struct {
	db *gorm.DB
}

// NewStore returns a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetActor returns a cached actor by its canonical URL.
func (s *Store) GetActor(ctx context.Context, id string) (types.ApActor, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActor")
	defer span.End()

	var actor types.ApActor
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&actor)
	return actor, result.Error
}

// UpsertActor creates or replaces an actor record wholesale, keyed by id.
func (s *Store) UpsertActor(ctx context.Context, actor types.ApActor) error {
	ctx, span := tracer.Start(ctx, "StoreUpsertActor")
	defer span.End()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&actor).Error
}

// DeleteActor removes an actor record.
func (s *Store) DeleteActor(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteActor")
	defer span.End()

	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&types.ApActor{}).Error
}

// GetFollow returns a follow by the id of the Follow activity that created
// it.
func (s *Store) GetFollow(ctx context.Context, activityID string) (types.ApFollow, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollow")
	defer span.End()

	var follow types.ApFollow
	result := s.db.WithContext(ctx).Where("id = ?", activityID).First(&follow)
	return follow, result.Error
}

// UpsertFollow creates or replaces a follow keyed by activity id. The
// conflict clause makes this the atomic check-and-insert two concurrent
// dispatches of the same Follow rely on.
func (s *Store) UpsertFollow(ctx context.Context, follow types.ApFollow) error {
	ctx, span := tracer.Start(ctx, "StoreUpsertFollow")
	defer span.End()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&follow).Error
}

// DeleteFollow removes a follow by activity id.
func (s *Store) DeleteFollow(ctx context.Context, activityID string) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteFollow")
	defer span.End()

	return s.db.WithContext(ctx).Where("id = ?", activityID).Delete(&types.ApFollow{}).Error
}

// DeleteFollowsByActor removes every follow where the actor appears on
// either side.
func (s *Store) DeleteFollowsByActor(ctx context.Context, actorID string) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteFollowsByActor")
	defer span.End()

	return s.db.WithContext(ctx).
		Where("from_actor = ? OR to_actor = ?", actorID, actorID).
		Delete(&types.ApFollow{}).Error
}

// CreateInboxEntry persists a received activity and returns it with its
// store-assigned id.
func (s *Store) CreateInboxEntry(ctx context.Context, entry types.ApInboxEntry) (types.ApInboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateInboxEntry")
	defer span.End()

	result := s.db.WithContext(ctx).Create(&entry)
	return entry, result.Error
}

// GetInboxEntry returns an entry by its store-assigned id.
func (s *Store) GetInboxEntry(ctx context.Context, id uint) (types.ApInboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreGetInboxEntry")
	defer span.End()

	var entry types.ApInboxEntry
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&entry)
	return entry, result.Error
}

// ListInboxEntriesByStatus returns all entries in the given status bucket.
func (s *Store) ListInboxEntriesByStatus(ctx context.Context, status types.InboxEntryStatus) ([]types.ApInboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreListInboxEntriesByStatus")
	defer span.End()

	var entries []types.ApInboxEntry
	err := s.db.WithContext(ctx).Where("status = ?", string(status)).Find(&entries).Error
	return entries, err
}

// UpdateInboxEntriesStatus transitions entries to a new status, refreshing
// updated_at.
func (s *Store) UpdateInboxEntriesStatus(ctx context.Context, ids []uint, status types.InboxEntryStatus) error {
	ctx, span := tracer.Start(ctx, "StoreUpdateInboxEntriesStatus")
	defer span.End()

	return s.db.WithContext(ctx).Model(&types.ApInboxEntry{}).
		Where("id IN ?", ids).
		Update("status", string(status)).Error
}

// DeleteInboxEntriesByStatus bulk-removes a status bucket. Administrative
// operation behind the cleanup endpoint.
func (s *Store) DeleteInboxEntriesByStatus(ctx context.Context, status types.InboxEntryStatus) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteInboxEntriesByStatus")
	defer span.End()

	return s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Delete(&types.ApInboxEntry{}).Error
}
