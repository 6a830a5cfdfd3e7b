package worker

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/atrium-social/atrium/ap"
	"github.com/atrium-social/atrium/store"
	"github.com/atrium-social/atrium/world"
)

// Worker drains the inbox queue, running the same dispatch routine the sync
// endpoint uses. Ingestion pushes entry IDs; processing order across
// entries is unspecified.
type Worker struct {
	rdb     *redis.Client
	store   *store.Store
	service *ap.Service
}

func NewWorker(rdb *redis.Client, store *store.Store, service *ap.Service) *Worker {
	return &Worker{
		rdb:     rdb,
		store:   store,
		service: service,
	}
}

func (w *Worker) Run(ctx context.Context) {
	log.Printf("start inbox worker")

	for {
		result, err := w.rdb.BLPop(ctx, 10*time.Second, world.InboxQueue).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			log.Printf("worker/inbox BLPop: %v", err)
			time.Sleep(time.Second)
			continue
		}

		id, err := strconv.ParseUint(result[1], 10, 64)
		if err != nil {
			log.Printf("worker/inbox bad entry id %q: %v", result[1], err)
			continue
		}

		entry, err := w.store.GetInboxEntry(ctx, uint(id))
		if err != nil {
			log.Printf("worker/inbox GetInboxEntry %d: %v", id, err)
			continue
		}

		if err := w.service.ProcessEntry(ctx, entry); err != nil {
			log.Printf("worker/inbox ProcessEntry %d: %v", id, err)
		}
	}
}
