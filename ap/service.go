package ap

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/atrium-social/atrium/apclient"
	"github.com/atrium-social/atrium/httpsig"
	"github.com/atrium-social/atrium/store"
	"github.com/atrium-social/atrium/types"
	"github.com/atrium-social/atrium/world"
)

// Service implements the inbound federation engine: ingestion, actor
// resolution and the inbox dispatch state machine.
type Service struct {
	store    *store.Store
	apclient *apclient.ApClient
	rdb      *redis.Client
	info     types.NodeInfo
	config   types.ApConfig
}

// NewService wires the engine. rdb may be nil; entries are then processed
// only through the sync endpoint.
func NewService(
	store *store.Store,
	apclient *apclient.ApClient,
	rdb *redis.Client,
	info types.NodeInfo,
	config types.ApConfig,
) *Service {
	return &Service{
		store:    store,
		apclient: apclient,
		rdb:      rdb,
		info:     info,
		config:   config,
	}
}

// MainActor returns the local actor document.
func (s *Service) MainActor() types.Actor {
	return s.config.MainActor()
}

func (s *Service) WebFinger(ctx context.Context, resource string) (types.WebFinger, error) {
	_, span := tracer.Start(ctx, "Ap.Service.WebFinger")
	defer span.End()

	rt, id, found := strings.Cut(resource, ":")
	if !found || rt != "acct" {
		return types.WebFinger{}, errors.New("invalid resource")
	}

	username, domain, found := strings.Cut(strings.TrimPrefix(id, "@"), "@")
	if !found {
		return types.WebFinger{}, errors.New("invalid resource")
	}
	if username != s.config.Username || domain != s.config.FQDN {
		return types.WebFinger{}, ErrActorNotFound
	}

	return types.WebFinger{
		Subject: resource,
		Links: []types.WebFingerLink{
			{
				Rel:  "self",
				Type: world.ActivityJSONType,
				Href: s.config.ActorURL(),
			},
		},
	}, nil
}

func (s *Service) NodeInfo(ctx context.Context) (types.NodeInfo, error) {
	_, span := tracer.Start(ctx, "Ap.Service.NodeInfo")
	defer span.End()
	return s.info, nil
}

func (s *Service) NodeInfoWellKnown(ctx context.Context) (types.WellKnown, error) {
	_, span := tracer.Start(ctx, "Ap.Service.NodeInfoWellKnown")
	defer span.End()
	return types.WellKnown{
		Links: []types.WellKnownLink{
			{
				Rel:  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				Href: "https://" + s.config.FQDN + "/nodeinfo/2.0",
			},
		},
	}, nil
}

// -

// Ingest validates and persists an incoming activity. If the sender is
// already cached its signature is verified against the cached key and the
// request is rejected on failure; an unknown sender is accepted unverified
// so its key can be fetched during dispatch (trust-on-first-use). On
// success the entry is queued for background processing.
func (s *Service) Ingest(ctx context.Context, username string, req *http.Request, body []byte) (types.ApInboxEntry, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Ingest")
	defer span.End()

	if username != s.config.Username {
		return types.ApInboxEntry{}, ErrActorNotFound
	}

	var activity types.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return types.ApInboxEntry{}, errors.Wrap(ErrInvalidActivity, err.Error())
	}
	if activity.ID == "" || activity.Actor == "" || activity.Type == "" {
		return types.ApInboxEntry{}, ErrInvalidActivity
	}

	sender, err := s.store.GetActor(ctx, activity.Actor)
	switch {
	case err == nil:
		if err := httpsig.VerifyRequest(req, body, sender.PublicKeyPem); err != nil {
			span.RecordError(err)
			return types.ApInboxEntry{}, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Printf("inbox: unknown actor %s, deferring verification", activity.Actor)
	default:
		return types.ApInboxEntry{}, err
	}

	entry, err := s.store.CreateInboxEntry(ctx, types.NewApInboxEntry(activity, body))
	if err != nil {
		span.RecordError(err)
		return types.ApInboxEntry{}, err
	}

	if s.rdb != nil {
		if err := s.rdb.RPush(ctx, world.InboxQueue, entry.ID).Err(); err != nil {
			// The entry stays in "created"; a later sync picks it up.
			log.Printf("inbox: failed to enqueue entry %d: %v", entry.ID, err)
		}
	}

	return entry, nil
}

// ProcessEntry runs one dispatch pass over an entry and records the
// resulting status. Safe to call repeatedly; synced entries are never
// reprocessed.
func (s *Service) ProcessEntry(ctx context.Context, entry types.ApInboxEntry) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.ProcessEntry")
	defer span.End()

	if entry.Status == string(types.EntrySynced) {
		return nil
	}

	status := s.handleActivity(ctx, entry)
	return s.store.UpdateInboxEntriesStatus(ctx, []uint{entry.ID}, status)
}

// Sync reprocesses every entry in the given status bucket. Synced is
// refused; it is the one terminal state.
func (s *Service) Sync(ctx context.Context, status types.InboxEntryStatus) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.Sync")
	defer span.End()

	if !status.Valid() || status == types.EntrySynced {
		return ErrInvalidSyncStatus
	}

	entries, err := s.store.ListInboxEntriesByStatus(ctx, status)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := s.ProcessEntry(ctx, entry); err != nil {
			log.Printf("sync: entry %d: %v", entry.ID, err)
		}
	}

	return nil
}

// Cleanup bulk-deletes processed entries.
func (s *Service) Cleanup(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.Cleanup")
	defer span.End()

	return s.store.DeleteInboxEntriesByStatus(ctx, types.EntrySynced)
}

// -

// handleActivity is the dispatch boundary: it matches on activity type and
// object type and collapses every handler failure, resolver failures
// included, to entry status "error" so all handlers share one
// failure-to-status mapping.
func (s *Service) handleActivity(ctx context.Context, entry types.ApInboxEntry) types.InboxEntryStatus {
	ctx, span := tracer.Start(ctx, "Ap.Service.HandleActivity")
	defer span.End()

	activity, err := entry.Activity()
	if err != nil {
		span.RecordError(err)
		log.Printf("dispatch: entry %d has an unreadable payload: %v", entry.ID, err)
		return types.EntryError
	}

	var status types.InboxEntryStatus

	switch {
	case activity.Type == "Follow":
		status, err = s.handleFollow(ctx, activity)
	case activity.Type == "Undo" && activity.ObjectType() == "Follow":
		status, err = s.handleUnfollow(ctx, activity)
	case activity.Type == "Delete" && activity.ObjectType() == "":
		status, err = s.handleDelete(ctx, activity)
	default:
		status, err = s.handleUnknown(ctx, activity)
	}

	if err != nil {
		span.RecordError(err)
		log.Printf("dispatch: entry %d (%s): %v", entry.ID, activity.Type, err)
		return types.EntryError
	}

	return status
}

// ensureRemoteActor is the single point where remote identity is trusted:
// it returns the cached actor or fetches, caches and returns it. Failures
// come back as EnsureActorError and are not retried synchronously.
func (s *Service) ensureRemoteActor(ctx context.Context, actorURL string) (types.Actor, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.EnsureRemoteActor")
	defer span.End()

	record, err := s.store.GetActor(ctx, actorURL)
	if err == nil {
		return record.ToActor(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Actor{}, &EnsureActorError{Actor: actorURL, Err: err}
	}

	actor, err := s.apclient.FetchActor(ctx, actorURL)
	if err != nil {
		span.RecordError(err)
		return types.Actor{}, &EnsureActorError{Actor: actorURL, Err: err}
	}

	if err := s.store.UpsertActor(ctx, types.NewApActor(actor)); err != nil {
		return types.Actor{}, &EnsureActorError{Actor: actorURL, Err: err}
	}

	return actor, nil
}

// handleFollow accepts a follow: deliver a signed Accept to the sender's
// inbox, then persist the relationship. The Follow row is written only
// after successful delivery so a failed attempt is naturally retried by the
// next sync pass.
func (s *Service) handleFollow(ctx context.Context, activity types.Activity) (types.InboxEntryStatus, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.HandleFollow")
	defer span.End()

	actor, err := s.ensureRemoteActor(ctx, activity.Actor)
	if err != nil {
		return types.EntryError, err
	}

	if _, err := s.store.GetFollow(ctx, activity.ID); err == nil {
		// Already accepted on a previous pass; no duplicate Accept.
		return types.EntrySynced, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.EntryError, err
	}

	if err := s.apclient.PostToInbox(ctx, actor.Inbox, s.buildAccept(activity)); err != nil {
		return types.EntryError, err
	}

	err = s.store.UpsertFollow(ctx, types.ApFollow{
		ID:        activity.ID,
		FromActor: activity.Actor,
		ToActor:   s.config.ActorURL(),
		Status:    string(types.FollowAccepted),
	})
	if err != nil {
		return types.EntryError, err
	}

	return types.EntrySynced, nil
}

// handleUnfollow deletes a follow only when the referenced row exists and
// both the row and the embedded object name the Undo's sender, so nobody
// can undo someone else's follow. Always ends synced.
func (s *Service) handleUnfollow(ctx context.Context, activity types.Activity) (types.InboxEntryStatus, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.HandleUnfollow")
	defer span.End()

	followID, ok := activity.Object.GetString("id")
	if !ok {
		return types.EntrySynced, nil
	}
	embeddedActor, _ := activity.Object.GetString("actor")

	follow, err := s.store.GetFollow(ctx, followID)
	if err != nil {
		// Unknown or already undone.
		return types.EntrySynced, nil
	}

	if follow.FromActor == activity.Actor && embeddedActor == activity.Actor {
		if err := s.store.DeleteFollow(ctx, followID); err != nil {
			return types.EntryError, err
		}
	} else {
		log.Printf("unfollow: actor %s does not own follow %s", activity.Actor, followID)
	}

	return types.EntrySynced, nil
}

// handleDelete honors an actor deleting itself: the object must be a bare
// URL equal to the sender. Removes the actor's follows on both sides, then
// the actor record. Always ends synced.
func (s *Service) handleDelete(ctx context.Context, activity types.Activity) (types.InboxEntryStatus, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.HandleDelete")
	defer span.End()

	ref, ok := activity.Object.Ref()
	if !ok || ref != activity.Actor {
		return types.EntrySynced, nil
	}

	if err := s.store.DeleteFollowsByActor(ctx, activity.Actor); err != nil {
		return types.EntryError, err
	}
	if err := s.store.DeleteActor(ctx, activity.Actor); err != nil {
		return types.EntryError, err
	}

	return types.EntrySynced, nil
}

// handleUnknown records unsupported activity types without treating them as
// protocol errors, still resolving the sender so the cache stays warm.
func (s *Service) handleUnknown(ctx context.Context, activity types.Activity) (types.InboxEntryStatus, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.HandleUnknown")
	defer span.End()

	if _, err := s.ensureRemoteActor(ctx, activity.Actor); err != nil {
		return types.EntryError, err
	}

	return types.EntryNotImplemented, nil
}

// buildAccept builds the Accept{object: Follow{...}} response for a Follow
// activity. The Accept id is derived from the Follow id so redelivery
// produces the same activity.
func (s *Service) buildAccept(follow types.Activity) types.Activity {
	activityID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(follow.ID))

	return types.Activity{
		Context: []any{
			world.ActivityStreamsContext,
			world.SecurityContext,
			map[string]any{
				"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
			},
		},
		ID:    s.config.ActorURL() + "/activity/" + activityID.String(),
		Type:  "Accept",
		Actor: s.config.ActorURL(),
		Object: types.NewDocObject(map[string]any{
			"type":   "Follow",
			"id":     follow.ID,
			"actor":  follow.Actor,
			"object": s.config.ActorURL(),
		}),
	}
}
