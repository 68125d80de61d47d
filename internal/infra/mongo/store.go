package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-bank-service/internal/domain"
)

const collectionName = "quizzes"

// Store is the document strategy: the whole aggregate lives in one record,
// so creates are single atomic inserts and submission appends are a $push on
// the nested array.
type Store struct {
	uri      string
	database string

	mu     sync.Mutex
	client *mongo.Client
	coll   *mongo.Collection
}

func NewStore(uri, database string) *Store {
	return &Store{uri: uri, database: database}
}

// Connect establishes the client. Idempotent; called lazily by every
// operation.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping mongo: %w", err)
	}
	s.client = client
	s.coll = client.Database(s.database).Collection(collectionName)
	return nil
}

// Disconnect releases the client. Safe to call when never connected.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.coll = nil
	if err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func (s *Store) ensure(ctx context.Context) (*mongo.Collection, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll, nil
}

func (s *Store) CreateQuiz(ctx context.Context, input domain.Quiz) (domain.Quiz, error) {
	coll, err := s.ensure(ctx)
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.NewQuiz(input, time.Now())
	if _, err := coll.InsertOne(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) FindQuizByID(ctx context.Context, id string) (*domain.Quiz, error) {
	coll, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	var quiz domain.Quiz
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&quiz)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find quiz: %w", err)
	}
	normalizeTimes(&quiz)
	return &quiz, nil
}

// normalizeTimes rebases decoded timestamps to UTC. The driver decodes BSON
// datetimes into the local zone; writes are stored in UTC, and the canonical
// shape must render identically regardless of which backend served the read.
func normalizeTimes(quiz *domain.Quiz) {
	quiz.CreatedAt = quiz.CreatedAt.UTC()
	for i := range quiz.Submissions {
		quiz.Submissions[i].SubmittedAt = quiz.Submissions[i].SubmittedAt.UTC()
	}
}

// GetQuizHistory builds the filter document one field at a time, mirroring
// the incremental predicate of the relational strategy, and sorts most
// recent first.
func (s *Store) GetQuizHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.Quiz, error) {
	coll, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, historyFilterDoc(filter),
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find quiz history: %w", err)
	}

	quizzes := []domain.Quiz{}
	if err := cursor.All(ctx, &quizzes); err != nil {
		return nil, fmt.Errorf("decode quiz history: %w", err)
	}
	for i := range quizzes {
		normalizeTimes(&quizzes[i])
	}
	return quizzes, nil
}

// historyFilterDoc builds the filter document one field at a time, the
// document-store counterpart of the relational strategy's incremental
// predicate.
func historyFilterDoc(filter domain.HistoryFilter) bson.M {
	query := bson.M{"userId": filter.UserID}
	if filter.Grade != 0 {
		query["grade"] = filter.Grade
	}
	if filter.Subject != "" {
		query["subject"] = filter.Subject
	}
	createdAt := bson.M{}
	if !filter.From.IsZero() {
		createdAt["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		createdAt["$lte"] = filter.To
	}
	if len(createdAt) > 0 {
		query["createdAt"] = createdAt
	}
	return query
}

// SaveSubmission appends the submission to the nested array atomically.
// Returns (nil, nil) when the quiz does not exist.
func (s *Store) SaveSubmission(ctx context.Context, quizID string, input domain.Submission) (*domain.Quiz, error) {
	coll, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	sub := domain.NewSubmission(input, time.Now())

	var quiz domain.Quiz
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"_id": quizID},
		bson.M{"$push": bson.M{"submissions": sub}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&quiz)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}
	normalizeTimes(&quiz)
	return &quiz, nil
}
