package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"quiz-bank-service/internal/app"
	"quiz-bank-service/internal/domain"
)

// Handler exposes the quiz use cases over a small REST surface.
type Handler struct {
	service *app.QuizService
}

func NewHandler(service *app.QuizService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Post("/quizzes", h.createQuiz)
	r.Get("/quizzes/history", h.history)
	r.Get("/quizzes/{quizID}", h.getQuiz)
	r.Post("/quizzes/{quizID}/submissions", h.submit)
	return r
}

type submitPayload struct {
	Responses []domain.Response `json:"responses"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	var input domain.Quiz
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz payload")
		return
	}
	if input.UserID == "" || len(input.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "userId and questions are required")
		return
	}

	quiz, err := h.service.CreateQuiz(r.Context(), input)
	if err != nil {
		logrus.WithError(err).Error("create quiz failed")
		writeError(w, http.StatusInternalServerError, "failed to create quiz")
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if errors.Is(err, domain.ErrQuizNotFound) {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	}
	if err != nil {
		logrus.WithError(err).Error("get quiz failed")
		writeError(w, http.StatusInternalServerError, "failed to load quiz")
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	filter := domain.HistoryFilter{
		UserID:  userID,
		Subject: r.URL.Query().Get("subject"),
	}
	if raw := r.URL.Query().Get("grade"); raw != "" {
		grade, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "grade must be an integer")
			return
		}
		filter.Grade = grade
	}
	from, _, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	filter.From = from

	to, dateOnly, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	// A date-only upper bound means the whole day; the range is inclusive.
	if dateOnly {
		to = to.Add(24*time.Hour - time.Millisecond)
	}
	filter.To = to

	quizzes, err := h.service.GetHistory(r.Context(), filter)
	if err != nil {
		logrus.WithError(err).Error("quiz history failed")
		writeError(w, http.StatusInternalServerError, "failed to load quiz history")
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Responses == nil {
		writeError(w, http.StatusBadRequest, "responses are required")
		return
	}

	quiz, err := h.service.SubmitAnswers(r.Context(), chi.URLParam(r, "quizID"), payload.Responses)
	if errors.Is(err, domain.ErrQuizNotFound) {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	}
	if errors.Is(err, domain.ErrQuestionNotFound) {
		writeError(w, http.StatusBadRequest, "response references an unknown question")
		return
	}
	if err != nil {
		logrus.WithError(err).Error("submit answers failed")
		writeError(w, http.StatusInternalServerError, "failed to save submission")
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp. The second
// return reports whether the value was date-only, so callers can widen an
// upper bound to cover the entire day.
func parseDate(raw string) (time.Time, bool, error) {
	if raw == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Error: msg})
}
