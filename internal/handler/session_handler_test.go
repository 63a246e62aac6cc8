package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/laptrack/internal/model"
	"github.com/hitoshi/laptrack/internal/stats"
	"github.com/hitoshi/laptrack/internal/training"
)

func sampleSession(id string) *model.Session {
	stroke := model.StrokeFreestyle
	desc := "main set 10x100"
	date := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	return &model.Session{
		ID:          id,
		Title:       "Morning swim",
		Description: &desc,
		Date:        date,
		Duration:    60,
		Distance:    intPtr(2500),
		Stroke:      &stroke,
		UserID:      "user-1",
		CreatedAt:   date,
		UpdatedAt:   date,
	}
}

func TestSessionHandler_List(t *testing.T) {
	var gotLimit, gotOffset int
	svc := &mockTrainingService{
		listFn: func(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error) {
			gotLimit, gotOffset = limit, offset
			return []*model.Session{sampleSession("s-2"), sampleSession("s-1")}, nil
		},
	}
	h := NewSessionHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.List(w, withUserID(httptest.NewRequest(http.MethodGet, "/sessions?limit=20&offset=40", nil), "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotLimit != 20 || gotOffset != 40 {
		t.Errorf("limit/offset = %d/%d, want 20/40", gotLimit, gotOffset)
	}
	list, _ := decodeBody(t, w)["sessions"].([]any)
	if len(list) != 2 {
		t.Fatalf("sessions = %v", list)
	}
	first := list[0].(map[string]any)
	if first["id"] != "s-2" || first["description"] != "main set 10x100" || first["stroke"] != "FREESTYLE" {
		t.Errorf("first session = %v", first)
	}
}

func TestSessionHandler_List_EmptyIsArray(t *testing.T) {
	h := NewSessionHandler(&mockTrainingService{}, &mockStats{})

	w := httptest.NewRecorder()
	h.List(w, withUserID(httptest.NewRequest(http.MethodGet, "/sessions", nil), "user-1"))

	if !strings.Contains(w.Body.String(), `"sessions":[]`) {
		t.Errorf("body = %s, want empty array", w.Body.String())
	}
}

func TestSessionHandler_List_BadQuery(t *testing.T) {
	h := NewSessionHandler(&mockTrainingService{}, &mockStats{})

	for _, q := range []string{"limit=abc", "offset=-1", "offset=x"} {
		t.Run(q, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.List(w, withUserID(httptest.NewRequest(http.MethodGet, "/sessions?"+q, nil), "user-1"))
			assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
		})
	}
}

func TestSessionHandler_Create(t *testing.T) {
	var got training.Input
	svc := &mockTrainingService{
		createFn: func(ctx context.Context, userID string, in training.Input) (*model.Session, error) {
			got = in
			return sampleSession("s-new"), nil
		},
	}
	h := NewSessionHandler(svc, &mockStats{})

	body := `{"title":"Morning swim","date":"2026-03-09T07:00:00Z","duration":60,"distance":2500,"stroke":"freestyle"}`
	w := httptest.NewRecorder()
	h.Create(w, withUserID(httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(body)), "user-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Title == nil || *got.Title != "Morning swim" || got.Duration == nil || *got.Duration != 60 {
		t.Errorf("input = %+v", got)
	}
	if got.Stroke == nil || *got.Stroke != "freestyle" {
		t.Error("enum values are normalized by the service, not the handler")
	}
	if got.TeamID != nil || got.Intensity != nil {
		t.Errorf("omitted fields must be nil: %+v", got)
	}
	s, _ := decodeBody(t, w)["session"].(map[string]any)
	if s["id"] != "s-new" {
		t.Errorf("session = %v", s)
	}
}

func TestSessionHandler_Create_ValidationError(t *testing.T) {
	svc := &mockTrainingService{
		createFn: func(ctx context.Context, userID string, in training.Input) (*model.Session, error) {
			return nil, model.NewValidationError("duration must be positive")
		},
	}
	h := NewSessionHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.Create(w, withUserID(httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"duration":0}`)), "user-1"))

	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

func TestSessionHandler_Get(t *testing.T) {
	svc := &mockTrainingService{
		getFn: func(ctx context.Context, userID, id string) (*model.Session, error) {
			if id == "s-1" && userID == "user-1" {
				return sampleSession("s-1"), nil
			}
			return nil, model.NewSessionNotFoundError(id)
		},
	}
	h := NewSessionHandler(svc, &mockStats{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/sessions/s-1", nil), "id", "s-1")
	w := httptest.NewRecorder()
	h.Get(w, withUserID(req, "user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	// 他人の記録はNotFound
	w = httptest.NewRecorder()
	h.Get(w, withUserID(req, "user-2"))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeSessionNotFound)
}

func TestSessionHandler_Update(t *testing.T) {
	var got training.Input
	svc := &mockTrainingService{
		updateFn: func(ctx context.Context, userID, id string, patch training.Input) (*model.Session, error) {
			got = patch
			s := sampleSession(id)
			s.Title = *patch.Title
			return s, nil
		},
	}
	h := NewSessionHandler(svc, &mockStats{})

	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/sessions/s-1", strings.NewReader(`{"title":"Evening swim"}`)), "id", "s-1")
	w := httptest.NewRecorder()
	h.Update(w, withUserID(req, "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Date != nil || got.Duration != nil {
		t.Errorf("partial update must leave other fields nil: %+v", got)
	}
	s, _ := decodeBody(t, w)["session"].(map[string]any)
	if s["title"] != "Evening swim" {
		t.Errorf("title = %v", s["title"])
	}
}

func TestSessionHandler_Delete(t *testing.T) {
	svc := &mockTrainingService{
		deleteFn: func(ctx context.Context, userID, id string) error {
			if id == "missing" {
				return model.NewSessionNotFoundError(id)
			}
			return nil
		},
	}
	h := NewSessionHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.Delete(w, withUserID(withChiURLParam(httptest.NewRequest(http.MethodDelete, "/sessions/s-1", nil), "id", "s-1"), "user-1"))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	w = httptest.NewRecorder()
	h.Delete(w, withUserID(withChiURLParam(httptest.NewRequest(http.MethodDelete, "/sessions/missing", nil), "id", "missing"), "user-1"))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeSessionNotFound)
}

func TestSessionHandler_Stats(t *testing.T) {
	stroke := model.StrokeButterfly
	st := &mockStats{
		getUserStatsFn: func(ctx context.Context, userID string) (*stats.UserStats, error) {
			return &stats.UserStats{
				TotalSessions:    4,
				TotalDistance:    8000,
				MonthlySessions:  3,
				AverageDistance:  2000,
				MostCommonStroke: &stroke,
				WorkoutTypes:     map[model.WorkoutType]int{model.WorkoutSprint: 2},
			}, nil
		},
	}
	h := NewSessionHandler(&mockTrainingService{}, st)

	w := httptest.NewRecorder()
	h.Stats(w, withUserID(httptest.NewRequest(http.MethodGet, "/sessions/stats", nil), "user-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	s, _ := decodeBody(t, w)["stats"].(map[string]any)
	if s["totalSessions"] != float64(4) || s["monthlySessions"] != float64(3) || s["mostCommonStroke"] != "BUTTERFLY" {
		t.Errorf("stats = %v", s)
	}
	types, _ := s["workoutTypes"].(map[string]any)
	if types["SPRINT"] != float64(2) {
		t.Errorf("workoutTypes = %v", types)
	}
}

func TestSessionHandler_InternalErrorHidesDetails(t *testing.T) {
	svc := &mockTrainingService{
		listFn: func(ctx context.Context, userID string, limit, offset int) ([]*model.Session, error) {
			return nil, errors.New("pq: connection refused to 10.0.0.5")
		},
	}
	h := NewSessionHandler(svc, &mockStats{})

	w := httptest.NewRecorder()
	h.List(w, withUserID(httptest.NewRequest(http.MethodGet, "/sessions", nil), "user-1"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("internal details leaked: %s", w.Body.String())
	}
}
