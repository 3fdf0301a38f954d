package analytics

import (
	"context"

	"github.com/pivoter/pivoter/pkg/logger"
)

// QueryCountRepository persists query counts.
type QueryCountRepository interface {
	BatchIncrementQueryCounts(ctx context.Context, counts map[string]int64) error
}

// RepositoryFlusher implements Flusher using a repository.
type RepositoryFlusher struct {
	repo QueryCountRepository
	log  *logger.Logger
}

// NewRepositoryFlusher creates a new RepositoryFlusher.
func NewRepositoryFlusher(repo QueryCountRepository, log *logger.Logger) *RepositoryFlusher {
	return &RepositoryFlusher{
		repo: repo,
		log:  log,
	}
}

// FlushQueries persists query counts to the repository.
func (f *RepositoryFlusher) FlushQueries(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	err := f.repo.BatchIncrementQueryCounts(ctx, counts)
	if err != nil {
		if f.log != nil {
			f.log.Error("failed to flush query counts", "error", err.Error(), "datasets", len(counts))
		}
		return err
	}

	if f.log != nil {
		total := int64(0)
		for _, c := range counts {
			total += c
		}
		f.log.Debug("flushed query counts", "datasets", len(counts), "total_queries", total)
	}

	return nil
}
