package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/Vogeltak/reading-addiction/internal/common"
	"github.com/Vogeltak/reading-addiction/internal/interfaces"
	"github.com/Vogeltak/reading-addiction/internal/storage/badger"
)

// NewArticleStorage opens the configured database and returns the article store over it
func NewArticleStorage(logger arbor.ILogger, config *common.Config) (interfaces.ArticleStorage, error) {
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}
	return badger.NewArticleStorage(db, logger, config.Crawler.MaxAttempts), nil
}
