package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/apperr"
	"github.com/kjstillabower/weather-desk/internal/auth"
	"github.com/kjstillabower/weather-desk/internal/contacts"
	"github.com/kjstillabower/weather-desk/internal/controller"
	"github.com/kjstillabower/weather-desk/internal/lifecycle"
	"github.com/kjstillabower/weather-desk/internal/models"
	"github.com/kjstillabower/weather-desk/internal/traffic"
)

type stubFetcher struct {
	temp  float64
	err   error
	block chan struct{}
}

func (f *stubFetcher) GetCurrent(ctx context.Context, city string, unit models.Unit) (models.WeatherRecord, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return models.WeatherRecord{}, f.err
	}
	return models.WeatherRecord{Location: city, Country: "GB", Temperature: f.temp, ConditionCode: 800, Icon: "01d", Description: "clear sky", Unit: unit}, nil
}

func (f *stubFetcher) GetForecast(ctx context.Context, city string, unit models.Unit) ([]models.ForecastSample, error) {
	return []models.ForecastSample{{TimeText: "2024-03-02 12:00:00", Temperature: f.temp, Icon: "01d"}}, nil
}

type memHistory struct {
	mu      sync.Mutex
	entries []string
}

func (m *memHistory) Add(city string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]string{city}, m.entries...)
	return nil
}

func (m *memHistory) Suggestions(n int) []string {
	e := m.Entries()
	if n < len(e) {
		e = e[:n]
	}
	return e
}

func (m *memHistory) Entries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entries...)
}

type stubKey struct{ err error }

func (s stubKey) ValidateAPIKey(context.Context) error { return s.err }

type stubAuth struct {
	user auth.User
	err  error
}

func (s *stubAuth) Login(ctx context.Context, username, password string) (auth.User, error) {
	return s.user, s.err
}

func (s *stubAuth) Register(ctx context.Context, username, password string) (auth.User, error) {
	return s.user, s.err
}

type stubContacts struct {
	list      []contacts.Contact
	err       error
	lastQuery string
	lastID    int64
	lastInput contacts.Input
}

func (s *stubContacts) List(ctx context.Context, search string) ([]contacts.Contact, error) {
	s.lastQuery = search
	return s.list, s.err
}

func (s *stubContacts) Create(ctx context.Context, in contacts.Input) (contacts.Contact, error) {
	s.lastInput = in
	return contacts.Contact{ID: 7, Name: in.Name, Phone: in.Phone, Email: in.Email}, s.err
}

func (s *stubContacts) Update(ctx context.Context, id int64, in contacts.Input) (contacts.Contact, error) {
	s.lastID, s.lastInput = id, in
	return contacts.Contact{ID: id, Name: in.Name}, s.err
}

func (s *stubContacts) Delete(ctx context.Context, id int64) error {
	s.lastID = id
	return s.err
}

type testEnv struct {
	router   http.Handler
	ctrl     *controller.Controller
	fetcher  *stubFetcher
	history  *memHistory
	auth     *stubAuth
	contacts *stubContacts
}

func newTestEnv(t *testing.T, withDB bool) *testEnv {
	t.Helper()
	env := &testEnv{fetcher: &stubFetcher{temp: 20}, history: &memHistory{}}
	env.ctrl = controller.New(env.fetcher, env.history, nil, controller.Options{})
	deps := Deps{
		Controller: env.ctrl,
		History:    env.history,
		APIKey:     stubKey{},
		Logger:     zap.NewNop(),
	}
	if withDB {
		env.auth = &stubAuth{}
		env.contacts = &stubContacts{}
		deps.Auth = env.auth
		deps.Contacts = env.contacts
	}
	env.router = NewRouter(NewHandler(deps), zap.NewNop(), RouterConfig{RequestTimeout: time.Second})
	t.Cleanup(func() { _ = env.ctrl.Wait(context.Background()) })
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) controller.View {
	t.Helper()
	var v controller.View
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v; body=%s", err, w.Body.String())
	}
	return v
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var body struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v; body=%s", err, w.Body.String())
	}
	if body.Error.RequestID == "" {
		t.Error("requestId missing from error body")
	}
	return body.Error.Code, body.Error.Message
}

func TestGetWeather_InitialViewIsIdle(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/weather", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	v := decodeView(t, w)
	if v.State != controller.StateIdle || v.Unit != models.UnitMetric {
		t.Errorf("view = %+v", v)
	}
}

func TestPostSearch_Success(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/weather/search", `{"city":" London "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	v := decodeView(t, w)
	if v.State != controller.StateSuccess {
		t.Fatalf("state = %q, error = %q", v.State, v.Error)
	}
	if v.Current == nil || len(v.Forecast) != 1 {
		t.Errorf("current = %+v, forecast = %+v", v.Current, v.Forecast)
	}
	if len(v.History) != 1 || v.History[0] != "London" {
		t.Errorf("history = %v", v.History)
	}
}

func TestPostSearch_EmptyCityIsErrorView(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/weather/search", `{"city":"   "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	v := decodeView(t, w)
	if v.State != controller.StateError || v.Error != "Please enter a city name" {
		t.Errorf("view = %+v", v)
	}
}

func TestPostSearch_UpstreamErrorIsErrorView(t *testing.T) {
	env := newTestEnv(t, false)
	env.fetcher.err = apperr.New(apperr.KindNotFound, `City "Atlantis" not found`)
	v := decodeView(t, env.do(t, http.MethodPost, "/weather/search", `{"city":"Atlantis"}`))
	if v.State != controller.StateError || v.Error != `City "Atlantis" not found` {
		t.Errorf("view = %+v", v)
	}
}

func TestPostSearch_MalformedBody(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/weather/search", `{"city":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if code, _ := decodeErrorBody(t, w); code != "INVALID_BODY" {
		t.Errorf("code = %q", code)
	}
}

func TestPostSearch_TimeoutReturnsLoadingView(t *testing.T) {
	env := &testEnv{fetcher: &stubFetcher{temp: 20, block: make(chan struct{})}, history: &memHistory{}}
	env.ctrl = controller.New(env.fetcher, env.history, nil, controller.Options{})
	env.router = NewRouter(NewHandler(Deps{Controller: env.ctrl, History: env.history}), zap.NewNop(),
		RouterConfig{RequestTimeout: 20 * time.Millisecond})

	v := decodeView(t, env.do(t, http.MethodPost, "/weather/search", `{"city":"Paris"}`))
	if v.State != controller.StateLoading || v.Query != "Paris" {
		t.Errorf("view = %+v, want loading", v)
	}

	close(env.fetcher.block)
	if err := env.ctrl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := env.ctrl.View().State; got != controller.StateSuccess {
		t.Errorf("state after completion = %q", got)
	}
}

func TestPostToggleUnit(t *testing.T) {
	env := newTestEnv(t, false)

	v := decodeView(t, env.do(t, http.MethodPost, "/weather/unit", ""))
	if v.Unit != models.UnitMetric {
		t.Errorf("unit without a record = %q, want metric", v.Unit)
	}

	env.do(t, http.MethodPost, "/weather/search", `{"city":"London"}`)
	v = decodeView(t, env.do(t, http.MethodPost, "/weather/unit", ""))
	if v.Unit != models.UnitImperial || v.State != controller.StateSuccess {
		t.Errorf("view = %+v", v)
	}
	if v.Current == nil || !strings.HasSuffix(v.Current.Temperature, "°F") {
		t.Errorf("current = %+v", v.Current)
	}
}

func TestPostLocation_NoResolver(t *testing.T) {
	env := newTestEnv(t, false)
	v := decodeView(t, env.do(t, http.MethodPost, "/weather/location", ""))
	if v.State != controller.StateError || v.Error != controller.MessageNoLocation {
		t.Errorf("view = %+v", v)
	}
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t, false)
	env.history.entries = []string{"Paris", "London", "Oslo"}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		want       []string
	}{
		{"all", "", http.StatusOK, []string{"Paris", "London", "Oslo"}},
		{"limited", "?limit=2", http.StatusOK, []string{"Paris", "London"}},
		{"limit above size", "?limit=50", http.StatusOK, []string{"Paris", "London", "Oslo"}},
		{"zero", "?limit=0", http.StatusBadRequest, nil},
		{"not a number", "?limit=abc", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/weather/history"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.want == nil {
				return
			}
			var body struct {
				History []string `json:"history"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if strings.Join(body.History, ",") != strings.Join(tt.want, ",") {
				t.Errorf("history = %v, want %v", body.History, tt.want)
			}
		})
	}
}

func TestPostSelectHistory(t *testing.T) {
	env := newTestEnv(t, false)
	v := decodeView(t, env.do(t, http.MethodPost, "/weather/history/select", `{"city":"Oslo"}`))
	if v.State != controller.StateSuccess || v.Query != "Oslo" {
		t.Errorf("view = %+v", v)
	}
}

func TestAuthAndContactRoutes_AbsentWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/auth/login", "/contacts"} {
		if w := env.do(t, http.MethodPost, path, `{}`); w.Code != http.StatusNotFound {
			t.Errorf("POST %s status = %d, want 404", path, w.Code)
		}
	}
}

func TestPostLogin(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"success", nil, http.StatusOK, ""},
		{"missing fields", apperr.New(apperr.KindValidation, auth.MessageMissingCredentials), http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad password", apperr.New(apperr.KindUnauthorized, auth.MessageInvalidCredentials), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"database down", apperr.Wrap(apperr.KindDatabase, auth.MessageDatabase, errors.New("dial tcp")), http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			env.auth.user = auth.User{ID: 1, Username: "ada"}
			env.auth.err = tt.err

			w := env.do(t, http.MethodPost, "/auth/login", `{"username":"ada","password":"secret123"}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode == "" {
				if !strings.Contains(w.Body.String(), `"username":"ada"`) {
					t.Errorf("body = %s", w.Body.String())
				}
				return
			}
			code, msg := decodeErrorBody(t, w)
			if code != tt.wantCode || msg != apperr.Message(tt.err) {
				t.Errorf("error = %q %q", code, msg)
			}
			if strings.Contains(msg, "dial tcp") {
				t.Error("driver detail leaked to client")
			}
		})
	}
}

func TestPostRegister_Created(t *testing.T) {
	env := newTestEnv(t, true)
	env.auth.user = auth.User{ID: 2, Username: "grace"}
	if w := env.do(t, http.MethodPost, "/auth/register", `{"username":"grace","password":"longenough"}`); w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
}

func TestContacts_CRUD(t *testing.T) {
	env := newTestEnv(t, true)
	env.contacts.list = []contacts.Contact{{ID: 1, Name: "Ada"}}

	w := env.do(t, http.MethodGet, "/contacts?q=ad", "")
	if w.Code != http.StatusOK || env.contacts.lastQuery != "ad" {
		t.Errorf("list status = %d, query = %q", w.Code, env.contacts.lastQuery)
	}

	w = env.do(t, http.MethodPost, "/contacts", `{"name":"Grace","email":"g@example.com"}`)
	if w.Code != http.StatusCreated || env.contacts.lastInput.Name != "Grace" {
		t.Errorf("create status = %d, input = %+v", w.Code, env.contacts.lastInput)
	}

	w = env.do(t, http.MethodPut, "/contacts/9", `{"name":"Grace H"}`)
	if w.Code != http.StatusOK || env.contacts.lastID != 9 {
		t.Errorf("update status = %d, id = %d", w.Code, env.contacts.lastID)
	}

	w = env.do(t, http.MethodDelete, "/contacts/9", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
}

func TestContacts_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty name", apperr.New(apperr.KindValidation, contacts.MessageNameRequired), http.StatusBadRequest},
		{"unknown id", apperr.New(apperr.KindNotFound, contacts.MessageNotFound), http.StatusNotFound},
		{"database", apperr.New(apperr.KindDatabase, contacts.MessageDatabase), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			env.contacts.err = tt.err
			w := env.do(t, http.MethodPut, "/contacts/3", `{"name":""}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestContacts_NonNumericIDNotRouted(t *testing.T) {
	env := newTestEnv(t, true)
	if w := env.do(t, http.MethodDelete, "/contacts/abc", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		phase      func()
		keyErr     error
		errors     int
		health     *HealthConfig
		wantStatus int
		wantState  string
		wantChecks map[string]string
	}{
		{
			name:       "starting",
			phase:      func() {},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "starting",
		},
		{
			name:       "healthy",
			phase:      lifecycle.MarkServing,
			wantStatus: http.StatusOK,
			wantState:  "healthy",
			wantChecks: map[string]string{"weatherApi": "healthy"},
		},
		{
			name:       "draining",
			phase:      func() { lifecycle.MarkServing(); lifecycle.BeginDrain() },
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "shutting-down",
		},
		{
			name:       "bad api key",
			phase:      lifecycle.MarkServing,
			keyErr:     errors.New("invalid"),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "degraded",
			wantChecks: map[string]string{"weatherApi": "unhealthy"},
		},
		{
			name:       "error rate breach",
			phase:      lifecycle.MarkServing,
			errors:     5,
			health:     &HealthConfig{ErrorWindow: time.Minute, ErrorRatePct: 50},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "degraded",
		},
		{
			name:  "probes reported",
			phase: lifecycle.MarkServing,
			health: &HealthConfig{
				CachePing: func() error { return errors.New("down") },
				DBPing:    func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
			wantChecks: map[string]string{"weatherApi": "healthy", "cache": "unhealthy", "database": "healthy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lifecycle.Reset()
			traffic.Reset()
			t.Cleanup(func() { lifecycle.Reset(); traffic.Reset() })
			tt.phase()
			for i := 0; i < tt.errors; i++ {
				traffic.RecordError()
			}

			h := NewHandler(Deps{APIKey: stubKey{err: tt.keyErr}, Health: tt.health})
			w := httptest.NewRecorder()
			h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantState {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantState)
			}
			for k, want := range tt.wantChecks {
				if got := body.Checks[k]; got != want {
					t.Errorf("checks[%s] = %q, want %q", k, got, want)
				}
			}
		})
	}
}
