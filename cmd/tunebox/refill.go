package main

import (
	"context"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/persistence"
	"github.com/osa030/tunebox/internal/app/playback"
	"github.com/osa030/tunebox/internal/app/recommend"
	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/track"
)

// refiller queues recommendations seeded by recent history when the queue
// runs out, and resumes playback.
type refiller struct {
	engine  *playback.Engine
	fetcher *recommend.Fetcher
	store   persistence.Store
	seeds   int
	timeout time.Duration

	running atomic.Bool
}

func (r *refiller) refill() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer r.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		snap := r.engine.Snapshot()
		seeds := snap.Previous
		if snap.Current != nil {
			seeds = track.Prepend(seeds, *snap.Current)
		}
		if len(seeds) > r.seeds {
			seeds = seeds[:r.seeds]
		}
		if len(seeds) == 0 {
			return
		}

		found := r.fetcher.Recommend(ctx, seeds)
		for _, t := range snap.Previous {
			found = track.Without(found, t.ID)
		}
		if len(found) == 0 {
			zlog.Info().Msg("No recommendations to refill the queue")
			return
		}
		if err := r.store.StoreRecommendedTracks(ctx, found); err != nil {
			zlog.Warn().Msgf("Failed to store recommendations: %v", err)
		}

		r.engine.AddToQueue(found...)
		next := r.engine.Snapshot()
		if next.Status != state.StatusIdle || len(next.Queue) == 0 {
			return
		}
		zlog.Info().Msgf("Queue refilled with %d recommendations", len(found))
		if next.Current != nil {
			r.engine.SkipTrack()
			return
		}
		r.engine.PlayTrack(next.Queue[0], true)
	}()
}
