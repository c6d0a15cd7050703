// Package maintenance provides one-shot tasks to clean and refresh the status database.
package maintenance

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/herald/internal/config"
	"github.com/woozymasta/herald/internal/poller"
	"github.com/woozymasta/herald/internal/storage"
)

// Run executes the maintenance tasks selected in cfg, in the order prune offline,
// prune unknown, check all. The poller must already hold the configured targets.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, store *storage.Repository, poll *poller.Poller) bool {
	if !cfg.Maintenance() {
		return false
	}

	if cfg.Storage.PruneOffline {
		log.Info().Msg("Pruning offline servers...")

		count, err := store.DeleteOffline()
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune offline servers")
		} else {
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}
	}

	if cfg.Storage.PruneUnknown {
		keys := poll.Keys()
		log.Info().Int("targets", len(keys)).Msg("Pruning servers missing from the target list...")

		count, err := store.DeleteExcept(keys)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune unknown servers")
		} else {
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}
	}

	if cfg.Storage.CheckAll {
		checkAll(ctx, poll)
	}

	return true
}

func checkAll(ctx context.Context, poll *poller.Poller) {
	list := poll.Targets()
	if len(list) == 0 {
		log.Info().Msg("No targets configured for check")
		return
	}

	log.Info().Int("count", len(list)).Msg("Starting 'Check All' task...")

	online := 0
	for _, res := range poll.PollOnce(ctx) {
		if res.Online() {
			online++
			continue
		}
		log.Warn().
			Err(res.Err).
			Str("target", res.Target.Name).
			Str("address", res.Target.Address()).
			Msg("Server unreachable")
	}

	log.Info().Int("online", online).Int("offline", len(list)-online).Msg("Maintenance task completed")
}
