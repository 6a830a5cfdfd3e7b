package apclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/atrium-social/atrium/httpsig"
	"github.com/atrium-social/atrium/types"
	"github.com/atrium-social/atrium/world"
)

var (
	UserAgent = "Atrium/1.0 (ActivityPub)"
)

var tracer = otel.Tracer("apclient")

const actorCacheSeconds = 1800 // 30 minutes

// ApClient performs signed outbound federation calls as the local actor.
type ApClient struct {
	mc     *memcache.Client
	signer *httpsig.Signer
	config types.ApConfig
	client *http.Client
}

// NewApClient returns a client that signs with the local actor's key. mc may
// be nil to run without the actor document cache.
func NewApClient(
	mc *memcache.Client,
	signer *httpsig.Signer,
	config types.ApConfig,
) *ApClient {
	return &ApClient{
		mc:     mc,
		signer: signer,
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchActor fetches an actor document from a remote server with a signed
// GET, consulting the cache first.
func (c *ApClient) FetchActor(ctx context.Context, actorURL string) (types.Actor, error) {
	ctx, span := tracer.Start(ctx, "FetchActor")
	defer span.End()

	if c.mc != nil {
		if item, err := c.mc.Get(actorURL); err == nil {
			var actor types.Actor
			if err := json.Unmarshal(item.Value, &actor); err == nil {
				return actor, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", actorURL, nil)
	if err != nil {
		return types.Actor{}, err
	}
	req.Header.Set("Accept", world.FetchAccept)
	req.Header.Set("User-Agent", UserAgent)

	if err := c.signer.Sign(req, nil); err != nil {
		return types.Actor{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.Actor{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Actor{}, errors.Errorf("actor fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Actor{}, err
	}

	var actor types.Actor
	if err := json.Unmarshal(body, &actor); err != nil {
		return types.Actor{}, errors.Wrap(err, "unparsable actor document")
	}

	if actor.ID == "" || actor.Inbox == "" || actor.PublicKey.PublicKeyPem == "" {
		return types.Actor{}, errors.New("actor document missing required fields")
	}
	if !actor.Type.Valid() {
		return types.Actor{}, errors.Errorf("unknown actor type %q", actor.Type)
	}

	if c.mc != nil {
		if cached, err := json.Marshal(actor); err == nil {
			c.mc.Set(&memcache.Item{
				Key:        actorURL,
				Value:      cached,
				Expiration: actorCacheSeconds,
			})
		}
	}

	return actor, nil
}

// PostToInbox delivers an activity to a remote inbox with a signed POST.
// Any non-2xx response is an error; timeouts are treated the same by the
// caller.
func (c *ApClient) PostToInbox(ctx context.Context, inbox string, object any) error {
	ctx, span := tracer.Start(ctx, "PostToInbox")
	defer span.End()

	objectBytes, err := json.Marshal(object)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", inbox, bytes.NewBuffer(objectBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", world.ActivityJSONType)
	req.Header.Set("User-Agent", UserAgent)

	if err := c.signer.Sign(req, objectBytes); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Println(err)
	}
	log.Printf("POST %s [%d]: %s", inbox, resp.StatusCode, string(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("inbox delivery returned status %d", resp.StatusCode)
	}

	return nil
}
