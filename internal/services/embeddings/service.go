package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/models"
	"github.com/Vogeltak/reading-addiction/internal/services/chunker"
)

// Summary reports what an embedding run did
type Summary struct {
	Candidates int
	Embedded   int
	Failed     int // marked failed-to-embed, retried on the next run
	Chunks     int
}

// Service chunks fetched articles, embeds the chunks and stores the results
type Service struct {
	storage  interfaces.ArticleStorage
	provider interfaces.EmbeddingProvider
	chunker  *chunker.Chunker
	logger   arbor.ILogger
	config   *common.EmbeddingConfig
	backoff  common.Backoff

	mu        sync.Mutex
	summary   Summary
	dimension int // vector size every new vector must have, 0 until known
}

// NewService creates a new embedding coordinator
func NewService(
	storage interfaces.ArticleStorage,
	provider interfaces.EmbeddingProvider,
	chunks *chunker.Chunker,
	logger arbor.ILogger,
	config *common.EmbeddingConfig,
) *Service {
	return &Service{
		storage:  storage,
		provider: provider,
		chunker:  chunks,
		logger:   logger,
		config:   config,
		backoff:  common.NewBackoff(config.InitialBackoff.Std(), config.MaxBackoff.Std(), 2),
	}
}

// articleFailure is a per-article problem: the article is marked and the run continues
type articleFailure struct {
	reason string
}

func (e *articleFailure) Error() string {
	return e.reason
}

// Run embeds up to limit fetched articles without chunks (0 = all).
// Configuration errors, dimension mismatches and storage errors stop the run and are returned.
func (s *Service) Run(ctx context.Context, limit int) (Summary, error) {
	s.mu.Lock()
	s.summary = Summary{}
	s.mu.Unlock()

	stored, err := s.storage.EmbeddingDimension(ctx)
	if err != nil {
		return Summary{}, err
	}
	if s.config.Dimension > 0 && stored > 0 && s.config.Dimension != stored {
		return Summary{}, fmt.Errorf("%w: configured dimension %d, stored vectors have %d",
			models.ErrDimensionMismatch, s.config.Dimension, stored)
	}
	s.dimension = s.config.Dimension
	if s.dimension == 0 {
		s.dimension = stored
	}

	articles, err := s.storage.ListUnembedded(ctx, limit)
	if err != nil {
		return Summary{}, err
	}
	s.summary.Candidates = len(articles)
	if len(articles) == 0 {
		s.logger.Info().Msg("No fetched articles waiting for embeddings")
		return s.summary, nil
	}

	s.logger.Info().
		Int("candidates", len(articles)).
		Str("model", s.provider.ModelName()).
		Int("concurrency", s.config.Concurrency).
		Msg("Starting embedding run")
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.config.Concurrency))

	for _, article := range articles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return s.embedArticle(gctx, article)
		})
	}
	err = g.Wait()

	s.mu.Lock()
	summary := s.summary
	s.mu.Unlock()

	s.logger.Info().
		Int("embedded", summary.Embedded).
		Int("failed", summary.Failed).
		Int("chunks", summary.Chunks).
		Dur("elapsed", time.Since(started)).
		Msg("Embedding run finished")

	if err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

// embedArticle returns nil for per-article failures, which are recorded instead
func (s *Service) embedArticle(ctx context.Context, article *models.Article) error {
	texts := s.chunker.Split(article.ExtractedText)
	if len(texts) == 0 {
		return s.recordFailure(ctx, article, &articleFailure{reason: "no text to embed"})
	}

	chunks := make([]models.Chunk, 0, len(texts))
	for start := 0; start < len(texts); start += max(1, s.config.BatchSize) {
		end := min(len(texts), start+max(1, s.config.BatchSize))
		vectors, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return s.recordFailure(ctx, article, err)
		}
		for i, vector := range vectors {
			if err := s.checkDimension(len(vector)); err != nil {
				return err
			}
			chunks = append(chunks, models.Chunk{Index: start + i, Text: texts[start+i], Vector: vector})
		}
	}

	saved, err := s.storage.SaveChunks(ctx, article.URL, s.provider.ModelName(), chunks)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
			s.logger.Warn().Err(err).Str("url", article.URL).Msg("Embedding not saved")
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.summary.Embedded++
	s.summary.Chunks += saved.ChunkCount
	s.mu.Unlock()

	s.logger.Debug().
		Str("url", article.URL).
		Int("chunks", saved.ChunkCount).
		Int("dimension", len(saved.Embedding)).
		Msg("Embedded article")
	return nil
}

// embedBatch sends one batch, retrying transient failures with backoff
func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	maxAttempts := max(1, s.config.MaxAttempts)
	for attempt := 1; ; attempt++ {
		vectors, err := s.provider.Embed(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, &articleFailure{reason: fmt.Sprintf("provider returned %d vectors for %d chunks", len(vectors), len(texts))}
			}
			return vectors, nil
		}
		if !IsRetryable(err) || attempt >= maxAttempts || ctx.Err() != nil {
			return nil, err
		}

		delay := max(s.backoff.Delay(attempt), retryAfter(err))
		if s.backoff.Max > 0 {
			delay = min(delay, s.backoff.Max)
		}
		s.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Embedding batch failed, retrying")
		if err := common.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// recordFailure decides whether err ends the run or only this article
func (s *Service) recordFailure(ctx context.Context, article *models.Article, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, ErrServiceMisconfigured) || errors.Is(err, models.ErrDimensionMismatch) {
		return err
	}

	s.logger.Warn().Err(err).Str("url", article.URL).Msg("Failed to embed article")
	if recordErr := s.storage.RecordEmbedFailure(ctx, article.URL, err.Error()); recordErr != nil {
		return recordErr
	}

	s.mu.Lock()
	s.summary.Failed++
	s.mu.Unlock()
	return nil
}

// checkDimension pins the vector size to the first one seen when nothing else fixed it
func (s *Service) checkDimension(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		s.dimension = n
		return nil
	}
	if n != s.dimension {
		return fmt.Errorf("%w: provider returned %d-dimensional vectors, expected %d",
			models.ErrDimensionMismatch, n, s.dimension)
	}
	return nil
}
