package domain

import "errors"

var (
	// ErrUnsupportedBackend is returned when the configured storage backend
	// identifier is not one of the supported values.
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
	// ErrQuizNotFound indicates the requested quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID does not resolve
	// to a question in the quiz.
	ErrQuestionNotFound = errors.New("question not found")
)
