package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/models"
)

// Summary reports what a crawl run did
type Summary struct {
	Candidates int // pending articles picked up
	Fetched    int
	Failed     int // settled as failed during this run
	Retried    int // transient failures scheduled for another attempt
	Skipped    int // results the store refused, e.g. already settled by another run
	Aborted    int // left pending because the run was interrupted
}

// PageFetcher downloads a page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Service crawls pending articles with a fixed pool of workers
type Service struct {
	storage   interfaces.ArticleStorage
	logger    arbor.ILogger
	config    *common.CrawlerConfig
	fetcher   PageFetcher
	extractor *Extractor
	limiter   *HostLimiter
	backoff   common.Backoff
}

// NewService creates a new crawler service
func NewService(storage interfaces.ArticleStorage, logger arbor.ILogger, config *common.CrawlerConfig) *Service {
	return &Service{
		storage:   storage,
		logger:    logger,
		config:    config,
		fetcher:   NewFetcher(config),
		extractor: NewExtractor(),
		limiter:   NewHostLimiter(config.PerHostInterval.Std()),
		backoff:   common.NewBackoff(config.InitialBackoff.Std(), config.MaxBackoff.Std(), config.BackoffMultiplier),
	}
}

// crawlItem is the dispatcher's view of one URL
type crawlItem struct {
	url          string
	attempts     int
	nextEligible time.Time
}

type crawlResult struct {
	item    *crawlItem
	article *models.Article // state after commit, nil if nothing was committed
	aborted bool
	skipped bool
	err     error // fatal
}

// Run crawls up to limit pending articles (0 = all). Each worker commits its own result;
// the dispatcher re-queues transient failures after a backoff until the store settles them.
// Cancelling ctx stops dispatching and aborts in-flight fetches, which stay pending.
// A storage failure stops the run and is returned.
func (s *Service) Run(ctx context.Context, limit int) (Summary, error) {
	var summary Summary

	articles, err := s.storage.ClaimPending(ctx, limit)
	if err != nil {
		return summary, err
	}
	summary.Candidates = len(articles)
	if len(articles) == 0 {
		s.logger.Info().Msg("No pending articles to crawl")
		return summary, nil
	}

	concurrency := min(s.config.Concurrency, len(articles))
	s.logger.Info().
		Int("candidates", len(articles)).
		Int("workers", concurrency).
		Msg("Starting crawl")

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	jobs := make(chan *crawlItem)
	results := make(chan crawlResult)
	done := make(chan struct{})

	for i := 0; i < concurrency; i++ {
		common.SafeGo(s.logger, fmt.Sprintf("crawl-worker-%d", i), func() {
			defer func() { done <- struct{}{} }()
			for item := range jobs {
				results <- s.safeProcess(workCtx, item)
			}
		})
	}

	// Articles that failed transiently in an earlier run wait out the rest of their backoff
	ready := make([]*crawlItem, 0, len(articles))
	var delayed []*crawlItem
	now := time.Now()
	for _, article := range articles {
		item := &crawlItem{url: article.URL, attempts: article.Attempts}
		if article.Attempts > 0 && !article.LastCrawledAt.IsZero() {
			item.nextEligible = article.LastCrawledAt.Add(s.backoff.Delay(article.Attempts))
		}
		if item.nextEligible.After(now) {
			delayed = append(delayed, item)
		} else {
			ready = append(ready, item)
		}
	}
	if len(delayed) > 0 {
		s.logger.Debug().Int("backing_off", len(delayed)).Msg("Some articles are still backing off from an earlier run")
	}
	inFlight := 0
	stopping := false
	var fatal error

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	started := time.Now()
	for {
		if stopping && inFlight == 0 {
			break
		}
		if !stopping && len(ready) == 0 && len(delayed) == 0 && inFlight == 0 {
			break
		}

		var sendCh chan<- *crawlItem
		var next *crawlItem
		if !stopping && len(ready) > 0 {
			sendCh = jobs
			next = ready[0]
		}

		var timerC <-chan time.Time
		if !stopping && len(delayed) > 0 {
			timer.Reset(time.Until(earliest(delayed)))
			timerC = timer.C
		}

		var doneC <-chan struct{}
		if !stopping {
			doneC = ctx.Done()
		}

		select {
		case sendCh <- next:
			ready = ready[1:]
			inFlight++

		case result := <-results:
			inFlight--
			switch {
			case result.err != nil:
				if fatal == nil {
					fatal = result.err
					stopping = true
					cancelWork()
					s.logger.Error().Err(result.err).Str("url", result.item.url).Msg("Storage failure, stopping crawl")
				}
				summary.Aborted++
			case result.aborted:
				summary.Aborted++
			case result.skipped:
				summary.Skipped++
			default:
				switch result.article.CrawlStatus {
				case models.CrawlStatusFetched:
					summary.Fetched++
				case models.CrawlStatusFailed:
					summary.Failed++
				case models.CrawlStatusPending:
					result.item.attempts = result.article.Attempts
					delay := s.backoff.Delay(result.item.attempts)
					result.item.nextEligible = time.Now().Add(delay)
					delayed = append(delayed, result.item)
					summary.Retried++
					s.logger.Debug().
						Str("url", result.item.url).
						Int("attempts", result.item.attempts).
						Dur("backoff", delay).
						Msg("Retrying after backoff")
				}
			}

		case <-timerC:
			now := time.Now()
			remaining := delayed[:0]
			for _, item := range delayed {
				if !item.nextEligible.After(now) {
					ready = append(ready, item)
				} else {
					remaining = append(remaining, item)
				}
			}
			delayed = remaining

		case <-doneC:
			stopping = true
			cancelWork()
			s.logger.Warn().Int("in_flight", inFlight).Msg("Crawl interrupted, waiting for in-flight fetches")
		}
	}

	close(jobs)
	for i := 0; i < concurrency; i++ {
		<-done
	}

	summary.Aborted += len(ready) + len(delayed)

	s.logger.Info().
		Int("fetched", summary.Fetched).
		Int("failed", summary.Failed).
		Int("retried", summary.Retried).
		Int("skipped", summary.Skipped).
		Int("aborted", summary.Aborted).
		Dur("elapsed", time.Since(started)).
		Msg("Crawl finished")

	if fatal != nil {
		return summary, fatal
	}
	return summary, ctx.Err()
}

// safeProcess turns a panic while handling item into a fatal result for the run
func (s *Service) safeProcess(ctx context.Context, item *crawlItem) crawlResult {
	var result crawlResult
	if err := common.CatchPanic(func() error {
		result = s.process(ctx, item)
		return nil
	}); err != nil {
		return crawlResult{item: item, err: err}
	}
	return result
}

// process fetches one URL and commits the outcome
func (s *Service) process(ctx context.Context, item *crawlItem) crawlResult {
	if err := s.limiter.Wait(ctx, item.url); err != nil {
		return crawlResult{item: item, aborted: true}
	}

	outcome := s.crawl(ctx, item.url)
	if ctx.Err() != nil {
		return crawlResult{item: item, aborted: true}
	}

	article, err := s.storage.RecordCrawlResult(ctx, item.url, outcome)
	if err != nil {
		if ctx.Err() != nil {
			return crawlResult{item: item, aborted: true}
		}
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
			s.logger.Warn().Err(err).Str("url", item.url).Msg("Crawl result not recorded")
			return crawlResult{item: item, skipped: true}
		}
		return crawlResult{item: item, err: err}
	}

	event := s.logger.Debug()
	if article.CrawlStatus == models.CrawlStatusFailed {
		event = s.logger.Info()
	}
	event.Str("url", item.url).
		Str("status", string(article.CrawlStatus)).
		Int("attempts", article.Attempts).
		Str("classification", describeOutcome(outcome)).
		Msg("Crawled article")

	return crawlResult{item: item, article: article}
}

// crawl fetches and extracts one page. Extraction panics become extraction failures.
func (s *Service) crawl(ctx context.Context, url string) models.CrawlOutcome {
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return models.OutcomeFor(Classify(err))
	}
	if page.Truncated {
		s.logger.Debug().Str("url", url).Int64("max_body_size", s.config.MaxBodySize).Msg("Response body truncated")
	}

	var extraction *Extraction
	err = common.CatchPanic(func() error {
		var extractErr error
		extraction, extractErr = s.extractor.Extract(page.Body, page.URL)
		return extractErr
	})
	if err != nil {
		failure := Classify(err)
		failure.StatusCode = page.StatusCode
		return models.OutcomeFor(failure)
	}

	return models.Fetched{
		Text:       extraction.Markdown,
		PageTitle:  extraction.Title,
		HTTPStatus: page.StatusCode,
	}
}

func describeOutcome(outcome models.CrawlOutcome) string {
	switch o := outcome.(type) {
	case models.Fetched:
		return "fetched"
	case models.FailedAttempt:
		return o.Failure.String()
	case models.PermanentFailure:
		return o.Failure.String()
	default:
		return fmt.Sprintf("%T", outcome)
	}
}

func earliest(items []*crawlItem) time.Time {
	first := items[0].nextEligible
	for _, item := range items[1:] {
		if item.nextEligible.Before(first) {
			first = item.nextEligible
		}
	}
	return first
}
