package app

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-bank-service/internal/domain"
)

// QuizStore is the backend-agnostic persistence contract. Both storage
// strategies implement it; callers cannot tell from the returned shape which
// backend served the call. FindQuizByID and SaveSubmission report a missing
// quiz as (nil, nil).
type QuizStore interface {
	Connect(ctx context.Context) error
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	FindQuizByID(ctx context.Context, id string) (*domain.Quiz, error)
	GetQuizHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.Quiz, error)
	SaveSubmission(ctx context.Context, quizID string, submission domain.Submission) (*domain.Quiz, error)
	Disconnect(ctx context.Context) error
}

// Cache is the failure-isolated cache contract: Get resolves to hit or miss,
// Set either stores or silently drops. Neither ever returns an error.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// QuizService contains the quiz use cases over the store and the cache.
type QuizService struct {
	store      QuizStore
	cache      Cache
	historyTTL time.Duration
	sf         singleflight.Group
}

func NewQuizService(store QuizStore, cache Cache, historyTTL time.Duration) *QuizService {
	return &QuizService{store: store, cache: cache, historyTTL: historyTTL}
}

func (s *QuizService) CreateQuiz(ctx context.Context, input domain.Quiz) (domain.Quiz, error) {
	return s.store.CreateQuiz(ctx, input)
}

func (s *QuizService) GetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	quiz, err := s.store.FindQuizByID(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return *quiz, nil
}

// GetHistory serves the history lookup through the cache: identical filters
// within the TTL share one stored result, and concurrent identical lookups
// collapse into a single store round trip.
func (s *QuizService) GetHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.Quiz, error) {
	key := filter.CacheKey()

	var cached []domain.Quiz
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		quizzes, err := s.store.GetQuizHistory(ctx, filter)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, quizzes, s.historyTTL)
		return quizzes, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Quiz), nil
}

// SubmitAnswers scores the responses against the quiz and appends the
// resulting submission. Every response must resolve to a question in the
// quiz; an unresolved questionId is an error and nothing is persisted.
func (s *QuizService) SubmitAnswers(ctx context.Context, quizID string, responses []domain.Response) (domain.Quiz, error) {
	quiz, err := s.store.FindQuizByID(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}

	score, err := scoreResponses(*quiz, responses)
	if err != nil {
		return domain.Quiz{}, err
	}

	updated, err := s.store.SaveSubmission(ctx, quizID, domain.Submission{
		Responses: responses,
		Score:     score,
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	if updated == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return *updated, nil
}

// scoreResponses compares each response against its question's correct
// answer and sums the points of the matches.
func scoreResponses(quiz domain.Quiz, responses []domain.Response) (int, error) {
	questions := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions[q.ID] = q
	}

	score := 0
	for _, r := range responses {
		question, ok := questions[r.QuestionID]
		if !ok {
			return 0, domain.ErrQuestionNotFound
		}
		if r.UserResponse == question.CorrectAnswer {
			points := question.Points
			if points == 0 {
				points = 1
			}
			score += points
		}
	}
	return score, nil
}
