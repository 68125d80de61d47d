package infra

import (
	"fmt"

	"quiz-bank-service/internal/app"
	"quiz-bank-service/internal/config"
	"quiz-bank-service/internal/domain"
	"quiz-bank-service/internal/infra/mongo"
	"quiz-bank-service/internal/infra/postgres"
)

const (
	// BackendPostgres selects the relational strategy.
	BackendPostgres = "postgres"
	// BackendMongo selects the document strategy.
	BackendMongo = "mongo"
)

// NewQuizStore selects the storage strategy once, at construction. An
// unsupported backend identifier never silently defaults: it fails here with
// domain.ErrUnsupportedBackend.
func NewQuizStore(cfg config.Config) (app.QuizStore, error) {
	switch cfg.Storage.Backend {
	case BackendPostgres:
		return postgres.NewStore(cfg.Storage.Postgres.URL), nil
	case BackendMongo:
		return mongo.NewStore(cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedBackend, cfg.Storage.Backend)
	}
}
