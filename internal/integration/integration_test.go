package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-bank-service/internal/app"
	"quiz-bank-service/internal/domain"
	mongostore "quiz-bank-service/internal/infra/mongo"
	pgstore "quiz-bank-service/internal/infra/postgres"
	pgmigrations "quiz-bank-service/internal/infra/postgres/migrations"
)

func TestQuizStoreContract(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgDSN, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	mongoURI, mongoCleanup := startMongo(t, ctx)
	defer mongoCleanup()

	migratePostgres(t, ctx, pgDSN)

	relational := pgstore.NewStore(pgDSN)
	document := mongostore.NewStore(mongoURI, "quizbank_test")
	defer relational.Disconnect(ctx)
	defer document.Disconnect(ctx)

	stores := []struct {
		name  string
		store app.QuizStore
	}{
		{"relational", relational},
		{"document", document},
	}

	results := map[string]domain.Quiz{}
	for _, backend := range stores {
		backend := backend
		t.Run(backend.name+"/round-trip", func(t *testing.T) {
			input := sampleQuizInput("rt-" + backend.name)
			created, err := backend.store.CreateQuiz(ctx, input)
			if err != nil {
				t.Fatalf("create quiz: %v", err)
			}
			if len(created.Submissions) != 0 {
				t.Fatalf("created quiz must have empty submissions, got %d", len(created.Submissions))
			}

			found, err := backend.store.FindQuizByID(ctx, created.ID)
			if err != nil {
				t.Fatalf("find quiz: %v", err)
			}
			if found == nil {
				t.Fatalf("expected quiz %s to exist", created.ID)
			}
			assertSameAggregate(t, created, *found)

			// Option order survives exactly.
			if got := found.Questions[0].Options; got[0] != "A" || got[1] != "B" || got[2] != "C" {
				t.Fatalf("option order not preserved: %v", got)
			}
			results[backend.name] = *found
		})

		t.Run(backend.name+"/find-missing", func(t *testing.T) {
			found, err := backend.store.FindQuizByID(ctx, "1f6f2be3-0000-0000-0000-000000000000")
			if err != nil {
				t.Fatalf("find missing quiz: %v", err)
			}
			if found != nil {
				t.Fatalf("expected nil for missing quiz, got %+v", found)
			}
		})

		t.Run(backend.name+"/history-filter", func(t *testing.T) {
			userID := "hist-" + backend.name
			base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
			for i, grade := range []int{3, 4, 5} {
				input := sampleQuizInput(userID)
				input.Grade = grade
				input.CreatedAt = base.Add(time.Duration(i) * time.Hour)
				if _, err := backend.store.CreateQuiz(ctx, input); err != nil {
					t.Fatalf("create quiz grade %d: %v", grade, err)
				}
			}

			matches, err := backend.store.GetQuizHistory(ctx, domain.HistoryFilter{UserID: userID, Grade: 4})
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(matches) != 1 || matches[0].Grade != 4 {
				t.Fatalf("expected exactly the grade-4 quiz, got %+v", matches)
			}

			all, err := backend.store.GetQuizHistory(ctx, domain.HistoryFilter{UserID: userID})
			if err != nil {
				t.Fatalf("history all: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 quizzes, got %d", len(all))
			}
			// Most recent first.
			if all[0].Grade != 5 || all[1].Grade != 4 || all[2].Grade != 3 {
				t.Fatalf("history not most-recent-first: grades %d,%d,%d", all[0].Grade, all[1].Grade, all[2].Grade)
			}

			// Inclusive date range keeps the middle and newest quizzes.
			ranged, err := backend.store.GetQuizHistory(ctx, domain.HistoryFilter{
				UserID: userID,
				From:   base.Add(time.Hour),
			})
			if err != nil {
				t.Fatalf("history ranged: %v", err)
			}
			if len(ranged) != 2 {
				t.Fatalf("expected 2 quizzes in range, got %d", len(ranged))
			}
		})

		t.Run(backend.name+"/append-only-submissions", func(t *testing.T) {
			created, err := backend.store.CreateQuiz(ctx, sampleQuizInput("sub-"+backend.name))
			if err != nil {
				t.Fatalf("create quiz: %v", err)
			}

			first := domain.Submission{
				Responses: []domain.Response{{QuestionID: created.Questions[0].ID, UserResponse: "B"}},
				Score:     2,
			}
			second := domain.Submission{
				Responses: []domain.Response{{QuestionID: created.Questions[0].ID, UserResponse: "A"}},
				Score:     0,
			}

			updated, err := backend.store.SaveSubmission(ctx, created.ID, first)
			if err != nil {
				t.Fatalf("first submission: %v", err)
			}
			if updated == nil || len(updated.Submissions) != 1 {
				t.Fatalf("expected 1 submission, got %+v", updated)
			}

			updated, err = backend.store.SaveSubmission(ctx, created.ID, second)
			if err != nil {
				t.Fatalf("second submission: %v", err)
			}
			if len(updated.Submissions) != 2 {
				t.Fatalf("expected 2 submissions, got %d", len(updated.Submissions))
			}
			if updated.Submissions[0].Responses[0].UserResponse != "B" ||
				updated.Submissions[1].Responses[0].UserResponse != "A" {
				t.Fatalf("submissions out of call order: %+v", updated.Submissions)
			}
		})

		t.Run(backend.name+"/submission-missing-quiz", func(t *testing.T) {
			updated, err := backend.store.SaveSubmission(ctx, "1f6f2be3-0000-0000-0000-000000000000", domain.Submission{})
			if err != nil {
				t.Fatalf("save submission: %v", err)
			}
			if updated != nil {
				t.Fatalf("expected nil for missing quiz, got %+v", updated)
			}
		})
	}

	t.Run("backends-structurally-equal", func(t *testing.T) {
		rel, okR := results["relational"]
		doc, okD := results["document"]
		if !okR || !okD {
			t.Skip("round-trip results unavailable")
		}
		assertSameShape(t, rel, doc)
	})

	t.Run("relational/create-rollback", func(t *testing.T) {
		pool := connectPool(t, ctx, pgDSN)
		defer pool.Close()
		if _, err := pool.Exec(ctx,
			`ALTER TABLE options ADD CONSTRAINT opt_no_boom CHECK (option_text <> 'boom')`); err != nil {
			t.Fatalf("add constraint: %v", err)
		}
		defer pool.Exec(ctx, `ALTER TABLE options DROP CONSTRAINT opt_no_boom`)

		input := sampleQuizInput("atomic-create")
		input.Questions = append(input.Questions, domain.Question{
			Text:          "poisoned",
			Options:       []string{"ok", "boom"},
			CorrectAnswer: "ok",
		})

		_, err := relational.CreateQuiz(ctx, input)
		if err == nil {
			t.Fatalf("expected create to fail on constraint violation")
		}

		// No partial quiz: nothing for this user is observable.
		quizzes, err := relational.GetQuizHistory(ctx, domain.HistoryFilter{UserID: "atomic-create"})
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(quizzes) != 0 {
			t.Fatalf("partial quiz visible after rollback: %+v", quizzes)
		}
	})

	t.Run("relational/submission-rollback", func(t *testing.T) {
		created, err := relational.CreateQuiz(ctx, sampleQuizInput("atomic-sub"))
		if err != nil {
			t.Fatalf("create quiz: %v", err)
		}

		pool := connectPool(t, ctx, pgDSN)
		defer pool.Close()
		if _, err := pool.Exec(ctx,
			`ALTER TABLE responses ADD CONSTRAINT resp_no_boom CHECK (user_response <> 'boom')`); err != nil {
			t.Fatalf("add constraint: %v", err)
		}
		defer pool.Exec(ctx, `ALTER TABLE responses DROP CONSTRAINT resp_no_boom`)

		_, err = relational.SaveSubmission(ctx, created.ID, domain.Submission{
			Responses: []domain.Response{
				{QuestionID: created.Questions[0].ID, UserResponse: "B"},
				{QuestionID: created.Questions[0].ID, UserResponse: "boom"},
			},
		})
		if err == nil {
			t.Fatalf("expected submission to fail on constraint violation")
		}

		found, err := relational.FindQuizByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("find quiz: %v", err)
		}
		if len(found.Submissions) != 0 {
			t.Fatalf("partial submission visible after rollback: %+v", found.Submissions)
		}
	})
}

func sampleQuizInput(userID string) domain.Quiz {
	return domain.Quiz{
		UserID:      userID,
		Grade:       4,
		Subject:     "math",
		TotalPoints: 3,
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"A", "B", "C"}, CorrectAnswer: "B", Points: 2},
			{Text: "What is 3 + 3?", Options: []string{"5", "6"}, CorrectAnswer: "6"},
		},
	}
}

// assertSameAggregate compares two aggregates exactly (same identifiers).
func assertSameAggregate(t *testing.T, want, got domain.Quiz) {
	t.Helper()
	if got.ID != want.ID || got.UserID != want.UserID || got.Grade != want.Grade ||
		got.Subject != want.Subject || got.TotalPoints != want.TotalPoints {
		t.Fatalf("aggregate fields differ:\nwant %+v\n got %+v", want, got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("createdAt differs: want %v, got %v", want.CreatedAt, got.CreatedAt)
	}
	assertSameShape(t, want, got)
}

// assertSameShape compares two aggregates modulo generated identifiers and
// timestamps, the structural-equality contract across backends.
func assertSameShape(t *testing.T, want, got domain.Quiz) {
	t.Helper()
	if len(got.Questions) != len(want.Questions) {
		t.Fatalf("question count differs: want %d, got %d", len(want.Questions), len(got.Questions))
	}
	for i := range want.Questions {
		wq, gq := want.Questions[i], got.Questions[i]
		if gq.Text != wq.Text || gq.CorrectAnswer != wq.CorrectAnswer || gq.Points != wq.Points {
			t.Fatalf("question %d differs:\nwant %+v\n got %+v", i, wq, gq)
		}
		if len(gq.Options) != len(wq.Options) {
			t.Fatalf("question %d option count differs", i)
		}
		for j := range wq.Options {
			if gq.Options[j] != wq.Options[j] {
				t.Fatalf("question %d option %d: want %q, got %q", i, j, wq.Options[j], gq.Options[j])
			}
		}
	}
	if len(got.Submissions) != len(want.Submissions) {
		t.Fatalf("submission count differs: want %d, got %d", len(want.Submissions), len(got.Submissions))
	}
	for i := range want.Submissions {
		ws, gs := want.Submissions[i], got.Submissions[i]
		if gs.Score != ws.Score || len(gs.Responses) != len(ws.Responses) {
			t.Fatalf("submission %d differs:\nwant %+v\n got %+v", i, ws, gs)
		}
	}
}

func connectPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	return pool
}

func migratePostgres(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startMongo(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "mongo:6",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start mongo: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("mongo host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("mongo port: %v", err)
	}
	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	return uri, func() {
		_ = container.Terminate(ctx)
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
