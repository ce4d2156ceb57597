package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/prizewheel/internal/api"
	"github.com/victornm/prizewheel/internal/auth"
	"github.com/victornm/prizewheel/internal/domain"
	"github.com/victornm/prizewheel/internal/errors"
	"github.com/victornm/prizewheel/internal/event"
	"github.com/victornm/prizewheel/internal/history"
	"github.com/victornm/prizewheel/internal/ledger"
	"github.com/victornm/prizewheel/internal/roulette"
	"github.com/victornm/prizewheel/internal/spin"
)

func TestAPI_Roulettes(t *testing.T) {
	f := makeFixture(t)
	token := f.login(t)

	tests := map[string]struct {
		method string
		path   string
		token  string
		body   any
		status int
		assert func(t *testing.T, env envelope)
	}{
		"create without a token": {
			method: http.MethodPost,
			path:   "/api/roulettes",
			body:   map[string]any{"roulette_number": 2, "roulette_name": "Colors", "roulette_inner_data": []string{"Red"}},
			status: http.StatusUnauthorized,
			assert: func(t *testing.T, env envelope) {
				assert.Equal(t, "missing token", env.Error)
			},
		},
		"create": {
			method: http.MethodPost,
			path:   "/api/roulettes",
			token:  token,
			body: map[string]any{
				"roulette_number":     2,
				"roulette_name":       "Colors",
				"roulette_data_count": 3,
				"roulette_inner_data": []string{"Red", "Green", "Blue"},
				"GuaranteedWin":       "Green",
			},
			status: http.StatusCreated,
			assert: func(t *testing.T, env envelope) {
				var r api.Roulette
				require.NoError(t, json.Unmarshal(env.Data, &r))
				assert.Equal(t, 2, r.Number)
				assert.Equal(t, 3, r.SegmentCount)
				require.NotNil(t, r.ForcedOutcome)
				assert.Equal(t, "Green", *r.ForcedOutcome)
			},
		},
		"create an existing number": {
			method: http.MethodPost,
			path:   "/api/roulettes",
			token:  token,
			body:   map[string]any{"roulette_number": 1, "roulette_name": "Again", "roulette_inner_data": []string{"X"}},
			status: http.StatusConflict,
		},
		"create without a name": {
			method: http.MethodPost,
			path:   "/api/roulettes",
			token:  token,
			body:   map[string]any{"roulette_number": 3, "roulette_inner_data": []string{"X"}},
			status: http.StatusBadRequest,
			assert: func(t *testing.T, env envelope) {
				assert.Equal(t, "field roulette_name is required", env.Error)
			},
		},
		"create with too many segments": {
			method: http.MethodPost,
			path:   "/api/roulettes",
			token:  token,
			body: map[string]any{
				"roulette_number":     3,
				"roulette_name":       "Big",
				"roulette_inner_data": []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13", "14", "15", "16"},
			},
			status: http.StatusBadRequest,
			assert: func(t *testing.T, env envelope) {
				assert.Equal(t, "field roulette_inner_data must be at most 15", env.Error)
			},
		},
		"get": {
			method: http.MethodGet,
			path:   "/api/roulettes/1",
			status: http.StatusOK,
			assert: func(t *testing.T, env envelope) {
				var r api.Roulette
				require.NoError(t, json.Unmarshal(env.Data, &r))
				assert.Equal(t, "Fruits", r.Name)
				assert.Equal(t, []string{"Apple", "Mandarin", "Peach", "Watermelon"}, r.Segments)
				assert.Nil(t, r.ForcedOutcome)
			},
		},
		"get a missing roulette": {
			method: http.MethodGet,
			path:   "/api/roulettes/99",
			status: http.StatusNotFound,
		},
		"get with a bad number": {
			method: http.MethodGet,
			path:   "/api/roulettes/abc",
			status: http.StatusBadRequest,
		},
		"list names only": {
			method: http.MethodGet,
			path:   "/api/roulettes",
			status: http.StatusOK,
			assert: func(t *testing.T, env envelope) {
				var rs []map[string]any
				require.NoError(t, json.Unmarshal(env.Data, &rs))
				require.Len(t, rs, 2, "roulette 2 was created by an earlier case")
				assert.Equal(t, map[string]any{"roulette_number": float64(1), "roulette_name": "Fruits"}, rs[0])
			},
		},
		"update the forced outcome": {
			method: http.MethodPut,
			path:   "/api/roulettes/1",
			token:  token,
			body:   map[string]any{"GuaranteedWin": "Peach"},
			status: http.StatusOK,
			assert: func(t *testing.T, env envelope) {
				var r api.Roulette
				require.NoError(t, json.Unmarshal(env.Data, &r))
				require.NotNil(t, r.ForcedOutcome)
				assert.Equal(t, "Peach", *r.ForcedOutcome)
				assert.Equal(t, "Fruits", r.Name)
			},
		},
		"delete a missing roulette": {
			method: http.MethodDelete,
			path:   "/api/roulettes/42",
			token:  token,
			status: http.StatusNotFound,
		},
		"list spins": {
			method: http.MethodGet,
			path:   "/api/roulettes/1/spins?limit=10",
			token:  token,
			status: http.StatusOK,
			assert: func(t *testing.T, env envelope) {
				var spins []api.Spin
				require.NoError(t, json.Unmarshal(env.Data, &spins))
				require.Len(t, spins, 1)
				assert.Equal(t, "123.5", spins[0].Rotation)
			},
		},
	}

	f.history.spins = append(f.history.spins, domain.Spin{
		SpinID:         "spin-1",
		SessionID:      "session-1",
		RouletteNumber: 1,
		WinningLabel:   "Apple",
		Rotation:       decimal.RequireFromString("123.5"),
	})

	// Subtests share the store, so they run in a fixed order.
	names := make([]string, 0, len(tests))
	for name := range tests {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tt := tests[name]
		t.Run(name, func(t *testing.T) {
			status, env := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.status < 300, env.Success)
			if tt.assert != nil {
				tt.assert(t, env)
			}
		})
	}
}

func TestAPI_Login(t *testing.T) {
	f := makeFixture(t)

	status, env := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid username or password", env.Error)

	status, env = f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "field password is required", env.Error)
}

func TestAPI_SpinFlow(t *testing.T) {
	f := makeFixture(t)

	status, env := f.do(t, http.MethodPost, "/api/sessions", "", nil)
	require.Equal(t, http.StatusCreated, status)

	var session struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.SessionID)

	spinPath := fmt.Sprintf("/api/sessions/%s/roulettes/1/spin?noDuplicate=true", session.SessionID)
	ledgerPath := fmt.Sprintf("/api/sessions/%s/roulettes/1/ledger", session.SessionID)

	status, env = f.do(t, http.MethodPost, spinPath, "", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	var resp api.SpinResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "Apple", resp.WinningLabel)
	assert.Equal(t, int64(7000), resp.SettleMillis)
	assert.InDelta(t, 5*360+315, resp.RotationDegrees, 1e-9)
	assert.True(t, resp.NoDuplicate)

	status, env = f.do(t, http.MethodPost, spinPath, "", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, spin.ReasonSpinInProgress, env.Reason)

	status, _ = f.do(t, http.MethodDelete, ledgerPath, "", nil)
	assert.Equal(t, http.StatusConflict, status)

	f.fireReveals()

	status, env = f.do(t, http.MethodGet, ledgerPath, "", nil)
	require.Equal(t, http.StatusOK, status)

	var l api.Ledger
	require.NoError(t, json.Unmarshal(env.Data, &l))
	assert.Equal(t, []string{"Apple"}, l.WonSegments)
	assert.Equal(t, []string{"Mandarin", "Peach", "Watermelon"}, l.Remaining)
	assert.False(t, l.Spinning)
	assert.False(t, l.AllWon)

	status, _ = f.do(t, http.MethodDelete, ledgerPath, "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = f.do(t, http.MethodGet, ledgerPath, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &l))
	assert.Empty(t, l.WonSegments)
	assert.InDelta(t, resp.RotationDegrees, l.Rotation, 1e-9, "a reset keeps the wheel where it stopped")
}

func TestAPI_SpinMissingRoulette(t *testing.T) {
	f := makeFixture(t)

	status, env := f.do(t, http.MethodPost, "/api/sessions/s1/roulettes/7/spin", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}

func TestAPI_PublishRouletteEvent(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()

	sub := f.redis.Subscribe(ctx, "test:pubsub:roulette:1", "test:pubsub:session:s1:roulette:1")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sp := domain.Spin{
		SpinID:         "spin-1",
		SessionID:      "s1",
		RouletteNumber: 1,
		WinningLabel:   "Peach",
		Rotation:       decimal.NewFromInt(3915),
	}
	require.NoError(t, f.api.PublishRouletteEvent(ctx, domain.EventSpinSettled{Spin: sp, AssignedIdentity: "alice"}))

	got := make(map[string]api.SpinSettled)
	for range 2 {
		msg, err := receive(ctx, sub)
		require.NoError(t, err)

		var n struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		assert.Equal(t, domain.EventNameSpinSettled, n.Event)

		var s api.SpinSettled
		require.NoError(t, json.Unmarshal(n.Data, &s))
		got[msg.Channel] = s
	}

	require.Len(t, got, 2)
	for _, s := range got {
		assert.Equal(t, "Peach", s.WinningLabel)
		assert.Equal(t, "alice", s.AssignedIdentity)
		assert.Equal(t, "3915", s.Rotation)
	}

	require.NoError(t, f.api.PublishRouletteEvent(ctx, domain.EventRouletteChanged{Number: 1, Change: domain.RouletteUpdated}))
	msg, err := receive(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "test:pubsub:roulette:1", msg.Channel)
	assert.JSONEq(t, `{"event":"roulette.changed","data":{"roulette_number":1,"change":"updated"}}`, msg.Payload)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Reason  string          `json:"reason"`
}

type fixture struct {
	engine  *gin.Engine
	api     *api.API
	redis   redis.UniversalClient
	history *fakeHistory

	mu      sync.Mutex
	pending []func()
}

func makeFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { rc.Close() })

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	f := &fixture{
		engine:  gin.New(),
		redis:   rc,
		history: &fakeHistory{},
	}

	rs := &fakeRoulettes{roulettes: map[int]domain.Roulette{
		1: {Number: 1, Name: "Fruits", Segments: []string{"Apple", "Mandarin", "Peach", "Watermelon"}},
	}}

	ss := spin.NewService(spin.Config{
		EventBus:  eb,
		Roulettes: rs,
		History:   f.history,
		Ledger:    ledger.NewService(ledger.Config{Redis: rc, Prefix: "test"}),
		Rand:      fixedRand(0),
		AfterFunc: func(_ time.Duration, fn func()) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.pending = append(f.pending, fn)
		},
	})

	as, err := auth.NewService(auth.Config{
		Username: "admin",
		Password: "secret-pass",
		Secret:   "0123456789abcdef0123456789abcdef",
	})
	require.NoError(t, err)

	f.api = api.New(api.Config{
		HTTP:         f.engine,
		EventBus:     eb,
		Roulette:     rs,
		History:      f.history,
		Spin:         ss,
		Auth:         as,
		Redis:        rc,
		PubsubPrefix: "test:pubsub",
	})

	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (f *fixture) login(t *testing.T) string {
	status, env := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, status, env.Error)

	var resp api.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp.Token
}

func (f *fixture) fireReveals() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func receive(ctx context.Context, sub *redis.PubSub) (*redis.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sub.ReceiveMessage(ctx)
}

type fakeRoulettes struct {
	mu        sync.Mutex
	roulettes map[int]domain.Roulette
}

func (f *fakeRoulettes) CreateRoulette(_ context.Context, req roulette.CreateRouletteRequest) (*domain.Roulette, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.roulettes[req.Number]; ok {
		return nil, errors.New(errors.CodeAlreadyExists, errors.WithMessagef("roulette %d already exists", req.Number))
	}

	r := domain.Roulette{
		Number:           req.Number,
		Name:             req.Name,
		Segments:         req.Segments,
		WinnerIdentities: req.WinnerIdentities,
		ForcedOutcome:    req.ForcedOutcome,
	}
	f.roulettes[r.Number] = r
	return &r, nil
}

func (f *fakeRoulettes) GetRoulette(_ context.Context, req roulette.GetRouletteRequest) (*domain.Roulette, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.roulettes[req.Number]
	if !ok {
		return nil, errors.NotFound("roulette not found: number=%d", req.Number)
	}
	return &r, nil
}

func (f *fakeRoulettes) ListRoulettes(_ context.Context, _ roulette.ListRoulettesRequest) ([]domain.Roulette, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Roulette, 0, len(f.roulettes))
	for _, r := range f.roulettes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeRoulettes) UpdateRoulette(_ context.Context, req roulette.UpdateRouletteRequest) (*domain.Roulette, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.roulettes[req.Number]
	if !ok {
		return nil, errors.NotFound("roulette not found: number=%d", req.Number)
	}
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.Segments != nil {
		r.Segments = req.Segments
	}
	if req.ForcedOutcome != nil {
		r.ForcedOutcome = *req.ForcedOutcome
	}
	f.roulettes[r.Number] = r
	return &r, nil
}

func (f *fakeRoulettes) DeleteRoulette(_ context.Context, req roulette.DeleteRouletteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.roulettes[req.Number]; !ok {
		return errors.NotFound("roulette not found: number=%d", req.Number)
	}
	delete(f.roulettes, req.Number)
	return nil
}

type fakeHistory struct {
	mu    sync.Mutex
	spins []domain.Spin
}

func (f *fakeHistory) RecordSpin(_ context.Context, sp domain.Spin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spins = append(f.spins, sp)
	return nil
}

func (f *fakeHistory) ListSpins(_ context.Context, req history.ListSpinsRequest) ([]domain.Spin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Spin
	for _, sp := range f.spins {
		if sp.RouletteNumber == req.RouletteNumber {
			out = append(out, sp)
		}
	}
	return out, nil
}

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }
