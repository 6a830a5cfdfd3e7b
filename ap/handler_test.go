package ap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-social/atrium/httpsig"
	"github.com/atrium-social/atrium/store"
	"github.com/atrium-social/atrium/types"
	"github.com/atrium-social/atrium/world"
)

func newTestApp(t *testing.T) (*echo.Echo, *Service, *store.Store) {
	t.Helper()

	service, storeService := newTestService(t)
	handler := NewHandler(service)

	e := echo.New()
	e.GET("/.well-known/host-meta", handler.HostMeta)
	e.GET("/.well-known/webfinger", handler.WebFinger)
	e.GET("/.well-known/nodeinfo", handler.NodeInfoWellKnown)
	e.GET("/nodeinfo/2.0", handler.NodeInfo)
	e.GET("/actors/:username", handler.Actor)
	e.POST("/actors/:username/inbox", handler.Inbox)
	e.POST("/system/inbox/sync", handler.SyncInbox)
	e.POST("/system/inbox/cleanup", handler.CleanupInbox)

	return e, service, storeService
}

func TestActorEndpoint(t *testing.T) {
	e, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/actors/relay", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), world.ActivityJSONType)

	var actor types.Actor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actor))
	assert.Equal(t, "https://local.example/actors/relay", actor.ID)
	assert.Equal(t, types.ActorTypePerson, actor.Type)
	assert.NotEmpty(t, actor.PublicKey.PublicKeyPem)
}

func TestActorEndpointUnknownUser(t *testing.T) {
	e, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/actors/stranger", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebFingerEndpoint(t *testing.T) {
	e, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/.well-known/webfinger?resource=acct:relay@local.example", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), world.JRDJSONType)

	var finger types.WebFinger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &finger))
	assert.Equal(t, "acct:relay@local.example", finger.Subject)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/.well-known/webfinger?resource=acct:ghost@local.example", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHostMetaEndpoint(t *testing.T) {
	e, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/.well-known/host-meta", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "local.example/.well-known/webfinger")
}

func TestNodeInfoEndpoints(t *testing.T) {
	e, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/.well-known/nodeinfo", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/nodeinfo/2.0")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/nodeinfo/2.0", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInboxEndpointStatusMapping(t *testing.T) {
	remote := newTestRemote(t)
	e, _, storeService := newTestApp(t)

	body := followPayload(remote, remote.actorURL()+"/activities/follow-1")

	t.Run("unknown sender accepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest("POST", "/actors/relay/inbox", strings.NewReader(body)))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("wrong recipient", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest("POST", "/actors/ghost/inbox", strings.NewReader(body)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("incomplete activity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest("POST", "/actors/relay/inbox", strings.NewReader(`{"type":"Follow"}`)))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	// Cache the sender so signature checks apply from here on.
	priv, pub, err := httpsig.GenerateKeyPair()
	require.NoError(t, err)
	actor := types.NewApActor(remote.actorDoc())
	actor.PublicKeyPem = pub
	require.NoError(t, storeService.UpsertActor(context.Background(), actor))

	signer, err := httpsig.NewSigner(remote.actorURL()+"#main-key", priv)
	require.NoError(t, err)

	t.Run("valid signature", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/actors/relay/inbox", strings.NewReader(body))
		require.NoError(t, signer.Sign(req, []byte(body)))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("tampered digest", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/actors/relay/inbox", strings.NewReader(body))
		require.NoError(t, signer.Sign(req, []byte(body)))
		req.Header.Set("Digest", httpsig.Digest([]byte("something else")))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		otherPriv, _, err := httpsig.GenerateKeyPair()
		require.NoError(t, err)
		otherSigner, err := httpsig.NewSigner(remote.actorURL()+"#main-key", otherPriv)
		require.NoError(t, err)

		req := httptest.NewRequest("POST", "/actors/relay/inbox", strings.NewReader(body))
		require.NoError(t, otherSigner.Sign(req, []byte(body)))

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unsigned request from known sender", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest("POST", "/actors/relay/inbox", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSyncEndpoint(t *testing.T) {
	e, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("POST", "/system/inbox/sync?status=error", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("POST", "/system/inbox/sync?status=synced", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("POST", "/system/inbox/sync?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupEndpoint(t *testing.T) {
	e, _, _ := newTestApp(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("POST", "/system/inbox/cleanup", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
