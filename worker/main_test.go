package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/atrium-social/atrium/ap"
	"github.com/atrium-social/atrium/apclient"
	"github.com/atrium-social/atrium/httpsig"
	"github.com/atrium-social/atrium/store"
	"github.com/atrium-social/atrium/types"
	"github.com/atrium-social/atrium/world"
)

func TestWorkerProcessesQueuedEntries(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&types.ApActor{},
		&types.ApFollow{},
		&types.ApInboxEntry{},
	))
	storeService := store.NewStore(db)

	_, remotePub, err := httpsig.GenerateKeyPair()
	require.NoError(t, err)

	// A fake peer serving its actor document and accepting deliveries.
	var remoteURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/users/alice", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Actor{
			ID:    remoteURL + "/users/alice",
			Type:  types.ActorTypePerson,
			Inbox: remoteURL + "/users/alice/inbox",
			PublicKey: types.PublicKey{
				ID:           remoteURL + "/users/alice#main-key",
				PublicKeyPem: remotePub,
			},
		})
	})
	mux.HandleFunc("/users/alice/inbox", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	remoteURL = server.URL

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	config := types.ApConfig{FQDN: "local.example", Username: "relay"}
	priv, pub, err := httpsig.GenerateKeyPair()
	require.NoError(t, err)
	config.PublicKeyPem = pub
	config.PrivateKeyPem = priv

	signer, err := httpsig.NewSigner(config.KeyID(), priv)
	require.NoError(t, err)

	client := apclient.NewApClient(nil, signer, config)
	service := ap.NewService(storeService, client, rdb, types.NodeInfo{}, config)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	worker := NewWorker(rdb, storeService, service)
	go worker.Run(ctx)

	payload := `{
		"id": "` + remoteURL + `/users/alice/activities/follow-1",
		"type": "Follow",
		"actor": "` + remoteURL + `/users/alice",
		"object": "https://local.example/actors/relay"
	}`
	var activity types.Activity
	require.NoError(t, json.Unmarshal([]byte(payload), &activity))

	entry, err := storeService.CreateInboxEntry(ctx, types.NewApInboxEntry(activity, []byte(payload)))
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(ctx, world.InboxQueue, entry.ID).Err())

	require.Eventually(t, func() bool {
		got, err := storeService.GetInboxEntry(context.Background(), entry.ID)
		return err == nil && got.Status == string(types.EntrySynced)
	}, 5*time.Second, 20*time.Millisecond)

	follow, err := storeService.GetFollow(context.Background(), activity.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.FollowAccepted), follow.Status)
}

func TestWorkerIgnoresGarbageQueueItems(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&types.ApInboxEntry{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	worker := NewWorker(rdb, store.NewStore(db), nil)
	go worker.Run(ctx)

	require.NoError(t, rdb.RPush(ctx, world.InboxQueue, "not-a-number").Err())
	require.NoError(t, rdb.RPush(ctx, world.InboxQueue, "99999").Err())

	// Both items drain without the worker crashing.
	require.Eventually(t, func() bool {
		n, err := rdb.LLen(context.Background(), world.InboxQueue).Result()
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
}
