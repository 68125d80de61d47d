package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-bank-service/internal/domain"
)

// Store is the relational strategy: the quiz aggregate is normalized into
// five tables (quizzes, questions, options, submissions, responses) and
// reassembled into the canonical nested shape on every read. Each
// multi-statement write owns one transaction; no partial aggregate is ever
// observable.
type Store struct {
	url string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewStore(url string) *Store {
	return &Store{url: url}
}

// Connect establishes the connection pool. It is idempotent and called
// lazily by every operation.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return nil
	}
	pool, err := pgxpool.Connect(ctx, s.url)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	s.pool = pool
	return nil
}

// Disconnect releases the pool. Safe to call when never connected.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *Store) ensure(ctx context.Context) (*pgxpool.Pool, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool, nil
}

// CreateQuiz writes the aggregate down into the normalized tables inside one
// transaction: the quiz row, then each question row, then each of its
// options with an explicit order column equal to its position.
func (s *Store) CreateQuiz(ctx context.Context, input domain.Quiz) (domain.Quiz, error) {
	pool, err := s.ensure(ctx)
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.NewQuiz(input, time.Now())

	tx, err := pool.Begin(ctx)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("begin create quiz: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO quizzes (quiz_id, user_id, grade, subject, total_points, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		quiz.ID, quiz.UserID, quiz.Grade, quiz.Subject, quiz.TotalPoints, quiz.CreatedAt)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}

	for _, q := range quiz.Questions {
		_, err = tx.Exec(ctx,
			`INSERT INTO questions (question_id, quiz_id, question_text, correct_answer, points) VALUES ($1, $2, $3, $4, $5)`,
			q.ID, quiz.ID, q.Text, q.CorrectAnswer, q.Points)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("insert question: %w", err)
		}
		for i, opt := range q.Options {
			_, err = tx.Exec(ctx,
				`INSERT INTO options (option_id, question_id, option_text, option_order) VALUES ($1, $2, $3, $4)`,
				uuid.NewString(), q.ID, opt, i)
			if err != nil {
				return domain.Quiz{}, fmt.Errorf("insert option: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("commit create quiz: %w", err)
	}
	return quiz, nil
}

// FindQuizByID reassembles the canonical aggregate: one read of the quiz
// row, one read of its questions, one read of options per question ordered
// by option_order, one read of submissions, and one read of responses per
// submission. Returns (nil, nil) when the quiz does not exist.
func (s *Store) FindQuizByID(ctx context.Context, id string) (*domain.Quiz, error) {
	pool, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	var quiz domain.Quiz
	err = pool.QueryRow(ctx,
		`SELECT quiz_id, user_id, grade, subject, total_points, created_at FROM quizzes WHERE quiz_id = $1`, id).
		Scan(&quiz.ID, &quiz.UserID, &quiz.Grade, &quiz.Subject, &quiz.TotalPoints, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	if quiz.Questions, err = s.loadQuestions(ctx, pool, id); err != nil {
		return nil, err
	}
	if quiz.Submissions, err = s.loadSubmissions(ctx, pool, id); err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (s *Store) loadQuestions(ctx context.Context, pool *pgxpool.Pool, quizID string) ([]domain.Question, error) {
	rows, err := pool.Query(ctx,
		`SELECT question_id, question_text, correct_answer, points FROM questions WHERE quiz_id = $1`, quizID)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	questions := []domain.Question{}
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.CorrectAnswer, &q.Points); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	for i := range questions {
		options, err := s.loadOptions(ctx, pool, questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].Options = options
	}
	return questions, nil
}

func (s *Store) loadOptions(ctx context.Context, pool *pgxpool.Pool, questionID string) ([]string, error) {
	rows, err := pool.Query(ctx,
		`SELECT option_text FROM options WHERE question_id = $1 ORDER BY option_order`, questionID)
	if err != nil {
		return nil, fmt.Errorf("select options: %w", err)
	}
	defer rows.Close()

	options := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		options = append(options, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	return options, nil
}

func (s *Store) loadSubmissions(ctx context.Context, pool *pgxpool.Pool, quizID string) ([]domain.Submission, error) {
	rows, err := pool.Query(ctx,
		`SELECT submission_id, score, submitted_at FROM submissions WHERE quiz_id = $1`, quizID)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	submissions := []domain.Submission{}
	for rows.Next() {
		var sub domain.Submission
		if err := rows.Scan(&sub.ID, &sub.Score, &sub.SubmittedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		submissions = append(submissions, sub)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}

	for i := range submissions {
		responses, err := s.loadResponses(ctx, pool, submissions[i].ID)
		if err != nil {
			return nil, err
		}
		submissions[i].Responses = responses
	}
	return submissions, nil
}

func (s *Store) loadResponses(ctx context.Context, pool *pgxpool.Pool, submissionID string) ([]domain.Response, error) {
	rows, err := pool.Query(ctx,
		`SELECT question_id, user_response FROM responses WHERE submission_id = $1`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("select responses: %w", err)
	}
	defer rows.Close()

	responses := []domain.Response{}
	for rows.Next() {
		var r domain.Response
		if err := rows.Scan(&r.QuestionID, &r.UserResponse); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read responses: %w", err)
	}
	return responses, nil
}

// GetQuizHistory selects matching quiz ids most recent first and reruns the
// full aggregate reconstruction per id. O(matches) round trips, matching the
// per-row reconstruction contract of the history lookup.
func (s *Store) GetQuizHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.Quiz, error) {
	pool, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	query, args := historyQuery(filter)
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select quiz history: %w", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan quiz id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read quiz history: %w", err)
	}

	quizzes := []domain.Quiz{}
	for _, id := range ids {
		quiz, err := s.FindQuizByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if quiz != nil {
			quizzes = append(quizzes, *quiz)
		}
	}
	return quizzes, nil
}

// historyQuery builds the filter predicate incrementally, one parameterized
// clause per present filter field. Filter values are never interpolated into
// the statement text.
func historyQuery(filter domain.HistoryFilter) (string, []interface{}) {
	query := `SELECT quiz_id FROM quizzes WHERE user_id = $1`
	args := []interface{}{filter.UserID}

	if filter.Grade != 0 {
		args = append(args, filter.Grade)
		query += ` AND grade = $` + strconv.Itoa(len(args))
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		query += ` AND subject = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY created_at DESC`
	return query, args
}

// SaveSubmission appends a submission and its responses inside one
// transaction. Returns (nil, nil) when the quiz does not exist.
func (s *Store) SaveSubmission(ctx context.Context, quizID string, input domain.Submission) (*domain.Quiz, error) {
	pool, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin save submission: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var ownerID string
	err = tx.QueryRow(ctx, `SELECT user_id FROM quizzes WHERE quiz_id = $1`, quizID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz owner: %w", err)
	}

	sub := domain.NewSubmission(input, time.Now())
	_, err = tx.Exec(ctx,
		`INSERT INTO submissions (submission_id, quiz_id, user_id, score, submitted_at) VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, quizID, ownerID, sub.Score, sub.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	for _, r := range sub.Responses {
		_, err = tx.Exec(ctx,
			`INSERT INTO responses (response_id, submission_id, question_id, user_response) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), sub.ID, r.QuestionID, r.UserResponse)
		if err != nil {
			return nil, fmt.Errorf("insert response: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit save submission: %w", err)
	}
	return s.FindQuizByID(ctx, quizID)
}
