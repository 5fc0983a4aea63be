package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"LevelSentinel/internal/model"
	"LevelSentinel/internal/recorder"
	"LevelSentinel/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeLevels struct {
	results map[model.Timeframe]*model.SRResult
	stats   recorder.Stats
}

func (f *fakeLevels) Latest(_ context.Context, _ model.Symbol, tfs []model.Timeframe) ([]*model.SRResult, error) {
	var out []*model.SRResult
	for _, tf := range tfs {
		if r, ok := f.results[tf]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLevels) LatestOne(_ context.Context, _ model.Symbol, tf model.Timeframe) (*model.SRResult, error) {
	return f.results[tf], nil
}

func (f *fakeLevels) Stats(context.Context) (recorder.Stats, error) { return f.stats, nil }

func (f *fakeLevels) Now() time.Time { return t0 }

type fakeTrigger struct {
	err    error
	calls  int
	during func(ctx context.Context)
}

func (f *fakeTrigger) RunNow(ctx context.Context) (*model.BatchSummary, error) {
	f.calls++
	if f.during != nil {
		f.during(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.BatchSummary{RunID: "run-1", Successes: []model.Job{{Symbol: model.BTC, Timeframe: model.TF1h}}}, nil
}

func (f *fakeTrigger) Running() bool { return false }

func init() { gin.SetMode(gin.TestMode) }

func btc1h() *model.SRResult {
	return &model.SRResult{
		ID:           "id-1",
		Symbol:       model.BTC,
		Timeframe:    model.TF1h,
		CurrentPrice: 105,
		Support1:     model.Level{Price: 100, Strength: 8, Sources: []model.Source{model.SourcePivotPoints}},
		Resistance1:  model.Level{Price: 110, Strength: 6, Sources: []model.Source{model.SourceVolumeProfile}},
		Method:       model.MethodHybrid,
		CalculatedAt: t0.Add(-time.Minute),
		ValidUntil:   t0.Add(time.Hour),
	}
}

func newTestServer(trigger BatchTrigger) (*Server, *fakeLevels) {
	levels := &fakeLevels{results: map[model.Timeframe]*model.SRResult{model.TF1h: btc1h()}}
	s := NewServer(Options{
		Timeframes: []model.Timeframe{model.TF15m, model.TF1h, model.TF4h},
		JWTSecret:  secret,
	}, levels, trigger)
	return s, levels
}

func do(t *testing.T, s *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(&fakeTrigger{})
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSymbolLevels(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := do(t, s, http.MethodGet, "/api/v1/levels/btc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Symbol string            `json:"symbol"`
		Levels []*model.SRResult `json:"levels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTC", body.Symbol)
	require.Len(t, body.Levels, 1)
	assert.Equal(t, 100.0, body.Levels[0].Support1.Price)

	rec = do(t, s, http.MethodGet, "/api/v1/levels/XRP", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSingleLevel(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := do(t, s, http.MethodGet, "/api/v1/levels/BTC/1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var r model.SRResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "id-1", r.ID)
	assert.Nil(t, r.Support2)

	rec = do(t, s, http.MethodGet, "/api/v1/levels/BTC/4h", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/levels/BTC/1d", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	s, levels := newTestServer(nil)
	levels.stats = recorder.Stats{Total: 5, Valid: 2, Oldest: t0.Add(-time.Hour), Newest: t0}

	rec := do(t, s, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Total)
	assert.Equal(t, 3, body.Expired)
	require.NotNil(t, body.Oldest)
	assert.True(t, body.Oldest.Equal(t0.Add(-time.Hour)))
}

func TestRunBatchAuth(t *testing.T) {
	trigger := &fakeTrigger{}
	s, _ := newTestServer(trigger)

	valid, err := SignTriggerToken(secret, time.Hour, time.Now())
	require.NoError(t, err)
	wrongKey, err := SignTriggerToken("other", time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := SignTriggerToken(secret, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong key", wrongKey, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"valid", valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/batch/run", tt.token)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Equal(t, 1, trigger.calls)
}

func TestRunBatchConflict(t *testing.T) {
	s, _ := newTestServer(&fakeTrigger{err: scheduler.ErrBatchInProgress})
	token, err := SignTriggerToken(secret, time.Hour, time.Now())
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/v1/batch/run", token)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunBatchSurvivesClientDisconnect(t *testing.T) {
	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var batchErr error
	trigger := &fakeTrigger{during: func(ctx context.Context) {
		cancel()
		batchErr = ctx.Err()
	}}
	s, _ := newTestServer(trigger)
	token, err := SignTriggerToken(secret, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch/run", nil).WithContext(reqCtx)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, 1, trigger.calls)
	assert.Error(t, reqCtx.Err())
	assert.NoError(t, batchErr)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunBatchDisabledWithoutTrigger(t *testing.T) {
	s, _ := newTestServer(nil)
	token, err := SignTriggerToken(secret, time.Hour, time.Now())
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/v1/batch/run", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenWithOtherSubjectRejected(t *testing.T) {
	assert.NoError(t, verifyTriggerToken(secret, mustSign(t, TriggerSubject)))
	assert.ErrorIs(t, verifyTriggerToken(secret, mustSign(t, "someone")), errInvalidToken)
}

func mustSign(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
