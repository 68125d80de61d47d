package infra

import (
	"errors"
	"testing"

	"quiz-bank-service/internal/config"
	"quiz-bank-service/internal/domain"
)

func TestNewQuizStoreSelectsBackend(t *testing.T) {
	cfg := config.Config{}
	cfg.Storage.Backend = BackendPostgres
	cfg.Storage.Postgres.URL = "postgres://localhost/quizbank"
	if store, err := NewQuizStore(cfg); err != nil || store == nil {
		t.Fatalf("expected postgres store, got %v / %v", store, err)
	}

	cfg = config.Config{}
	cfg.Storage.Backend = BackendMongo
	cfg.Storage.Mongo.URI = "mongodb://localhost:27017"
	cfg.Storage.Mongo.Database = "quizbank"
	if store, err := NewQuizStore(cfg); err != nil || store == nil {
		t.Fatalf("expected mongo store, got %v / %v", store, err)
	}
}

func TestNewQuizStoreRejectsUnsupportedBackend(t *testing.T) {
	for _, backend := range []string{"", "mysql", "sqlite"} {
		cfg := config.Config{}
		cfg.Storage.Backend = backend
		_, err := NewQuizStore(cfg)
		if !errors.Is(err, domain.ErrUnsupportedBackend) {
			t.Fatalf("backend %q: expected ErrUnsupportedBackend, got %v", backend, err)
		}
	}
}
