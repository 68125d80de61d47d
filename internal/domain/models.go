package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Quiz is the canonical aggregate shape returned by every read path,
// independent of which storage backend served the call.
type Quiz struct {
	ID          string       `json:"id" bson:"_id"`
	UserID      string       `json:"userId" bson:"userId"`
	Grade       int          `json:"grade" bson:"grade"`
	Subject     string       `json:"subject" bson:"subject"`
	TotalPoints int          `json:"totalPoints" bson:"totalPoints"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	Questions   []Question   `json:"questions" bson:"questions"`
	Submissions []Submission `json:"submissions" bson:"submissions"`
}

// Question is an MCQ question. Options keep their write order end-to-end:
// storing ["A","B","C"] reads back ["A","B","C"].
type Question struct {
	ID            string   `json:"id" bson:"id"`
	Text          string   `json:"question" bson:"question"`
	Options       []string `json:"options" bson:"options"`
	CorrectAnswer string   `json:"correctAnswer" bson:"correctAnswer"`
	Points        int      `json:"points" bson:"points"` // defaults to 1 if zero
}

// Submission records one answer set for a quiz. Submissions are append-only;
// a quiz is never structurally edited after creation, only extended.
type Submission struct {
	ID          string     `json:"id" bson:"id"`
	Responses   []Response `json:"responses" bson:"responses"`
	Score       int        `json:"score" bson:"score"`
	SubmittedAt time.Time  `json:"submittedAt" bson:"submittedAt"`
}

// Response is a single answer within a submission.
type Response struct {
	QuestionID   string `json:"questionId" bson:"questionId"`
	UserResponse string `json:"userResponse" bson:"userResponse"`
}

// HistoryFilter selects quizzes for the history lookup. UserID is required;
// zero values on the remaining fields mean "not filtered". From/To bound
// CreatedAt inclusively.
type HistoryFilter struct {
	UserID  string
	Grade   int
	Subject string
	From    time.Time
	To      time.Time
}

// CacheKey composes an opaque cache key from the filter fields so identical
// lookups within the cache TTL share one stored result.
func (f HistoryFilter) CacheKey() string {
	grade := ""
	if f.Grade != 0 {
		grade = strconv.Itoa(f.Grade)
	}
	from, to := "", ""
	if !f.From.IsZero() {
		from = f.From.UTC().Format(time.RFC3339)
	}
	if !f.To.IsZero() {
		to = f.To.UTC().Format(time.RFC3339)
	}
	return "quiz:history:" + f.UserID + ":" + grade + ":" + f.Subject + ":" + from + ":" + to
}

// NewQuiz normalizes caller-supplied quiz data into a fresh aggregate:
// surrogate identifiers for the quiz and every question, points defaulted to
// 1, an empty submissions sequence, and a creation timestamp. Timestamps are
// truncated to milliseconds in UTC so the value survives both storage
// engines' datetime precision unchanged.
func NewQuiz(input Quiz, now time.Time) Quiz {
	quiz := input
	quiz.ID = uuid.NewString()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.CreatedAt = quiz.CreatedAt.UTC().Truncate(time.Millisecond)

	quiz.Questions = make([]Question, len(input.Questions))
	for i, q := range input.Questions {
		q.ID = uuid.NewString()
		if q.Points == 0 {
			q.Points = 1
		}
		q.Options = append([]string(nil), q.Options...)
		quiz.Questions[i] = q
	}
	quiz.Submissions = []Submission{}
	return quiz
}

// NewSubmission assigns a surrogate identifier and defaults SubmittedAt to
// the supplied time.
func NewSubmission(input Submission, now time.Time) Submission {
	sub := input
	sub.ID = uuid.NewString()
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = now
	}
	sub.SubmittedAt = sub.SubmittedAt.UTC().Truncate(time.Millisecond)
	sub.Responses = append([]Response(nil), input.Responses...)
	return sub
}
