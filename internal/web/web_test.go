package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evsched/internal/config"
	"evsched/internal/events"
	"evsched/internal/ics"
	"evsched/internal/model"
	"evsched/internal/store/memory"
)

type fakeSyncer struct {
	calls int
	res   ics.SyncResult
	err   error
}

func (f *fakeSyncer) Sync(context.Context) (ics.SyncResult, error) {
	f.calls++
	return f.res, f.err
}

func newTestServer(t *testing.T, cfg *config.Config, syncer Syncer) *httptest.Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	svc := events.NewService(memory.New())
	s := NewServer(cfg, svc, syncer)
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createEvent(t *testing.T, base, body string) model.Event {
	t.Helper()
	resp, data := do(t, http.MethodPost, base+"/api/events", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var ev model.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func occurrences(t *testing.T, url string) []string {
	t.Helper()
	resp, data := do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var out []string
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWeeklyOccurrences(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	ev := createEvent(t, srv.URL, `{
		"title": "Standup",
		"startDate": "2025-01-06T09:00:00Z",
		"recurrence": {"type": "weekly", "weekdays": [1, 3, 5]}
	}`)
	assert.Equal(t, 1, ev.Recurrence.Interval)

	got := occurrences(t, srv.URL+"/api/events/"+ev.ID+"/occurrences?max=5")
	assert.Equal(t, []string{
		"2025-01-06T09:00:00.000Z",
		"2025-01-08T09:00:00.000Z",
		"2025-01-10T09:00:00.000Z",
		"2025-01-13T09:00:00.000Z",
		"2025-01-15T09:00:00.000Z",
	}, got)

	got = occurrences(t, srv.URL+"/api/events/"+ev.ID+"/occurrences?until=2025-01-10")
	assert.Equal(t, []string{"2025-01-06T09:00:00.000Z", "2025-01-08T09:00:00.000Z"}, got)
}

func TestHugeIntervalOccurrences(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	ev := createEvent(t, srv.URL, `{
		"title": "Rare",
		"startDate": "2025-01-06T09:00:00Z",
		"recurrence": {"type": "weekly", "weekdays": [1, 3], "interval": 1099511627776}
	}`)

	got := occurrences(t, srv.URL+"/api/events/"+ev.ID+"/occurrences")
	assert.Equal(t, []string{"2025-01-06T09:00:00.000Z", "2025-01-08T09:00:00.000Z"}, got)
}

func TestMonthlyOccurrencesRuleBoundWins(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	ev := createEvent(t, srv.URL, `{
		"title": "Rent",
		"startDate": "2025-01-31T00:00:00Z",
		"recurrence": {"type": "monthly", "monthDates": [31], "occurrences": 3}
	}`)

	got := occurrences(t, srv.URL+"/api/events/"+ev.ID+"/occurrences?max=50")
	assert.Equal(t, []string{
		"2025-01-31T00:00:00.000Z",
		"2025-03-31T00:00:00.000Z",
		"2025-05-31T00:00:00.000Z",
	}, got)
}

func TestSingleOccurrence(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	ev := createEvent(t, srv.URL, `{"title": "Launch", "startDate": "2025-06-01T00:00:00Z"}`)
	assert.Nil(t, ev.Recurrence)

	got := occurrences(t, srv.URL+"/api/events/"+ev.ID+"/occurrences?until=2025-05-01")
	assert.Empty(t, got)

	got = occurrences(t, srv.URL+"/api/events/"+ev.ID+"/occurrences")
	assert.Equal(t, []string{"2025-06-01T00:00:00.000Z"}, got)
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	bodies := map[string]string{
		"missing title":     `{"startDate": "2025-01-01T00:00:00Z"}`,
		"bad start":         `{"title": "x", "startDate": "yesterday"}`,
		"bad json":          `{"title":`,
		"unknown type":      `{"title": "x", "startDate": "2025-01-01", "recurrence": {"type": "daily"}}`,
		"weekly no days":    `{"title": "x", "startDate": "2025-01-01", "recurrence": {"type": "weekly", "weekdays": []}}`,
		"monthly no dates":  `{"title": "x", "startDate": "2025-01-01", "recurrence": {"type": "monthly"}}`,
		"weekday range":     `{"title": "x", "startDate": "2025-02-10", "recurrence": {"type": "weekly", "weekdays": [10]}}`,
		"zero interval":     `{"title": "x", "startDate": "2025-01-01", "recurrence": {"type": "weekly", "weekdays": [1], "interval": 0}}`,
		"zero occurrences":  `{"title": "x", "startDate": "2025-01-01", "recurrence": {"type": "weekly", "weekdays": [1], "occurrences": 0}}`,
		"bad rule end date": `{"title": "x", "startDate": "2025-01-01", "recurrence": {"type": "weekly", "weekdays": [1], "endDate": "soon"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			resp, data := do(t, http.MethodPost, srv.URL+"/api/events", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
			var e struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(data, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestOccurrencesQueryValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	ev := createEvent(t, srv.URL, `{"title": "x", "startDate": "2025-01-06T09:00:00Z", "recurrence": {"type": "weekly", "weekdays": [1]}}`)

	for _, q := range []string{"max=0", "max=-3", "max=abc", "until=tomorrow"} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/events/"+ev.ID+"/occurrences?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/events/missing/occurrences", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCRUD(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	ev := createEvent(t, srv.URL, `{"title": "Planning", "description": "q1", "startDate": "2025-01-06T10:00:00Z"}`)

	resp, data := do(t, http.MethodGet, srv.URL+"/api/events/"+ev.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "q1", got.Description)

	resp, data = do(t, http.MethodPut, srv.URL+"/api/events/"+ev.ID,
		`{"title": "Planning v2", "recurrence": {"type": "monthly", "monthDates": [6], "interval": 3}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Planning v2", got.Title)
	assert.Equal(t, "q1", got.Description)
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, 3, got.Recurrence.Interval)

	occ := occurrences(t, srv.URL+"/api/events/"+ev.ID+"/occurrences?max=2")
	assert.Equal(t, []string{"2025-01-06T10:00:00.000Z", "2025-04-06T10:00:00.000Z"}, occ)

	resp, data = do(t, http.MethodPut, srv.URL+"/api/events/"+ev.ID, `{"recurrence": null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Nil(t, got.Recurrence)

	createEvent(t, srv.URL, `{"title": "Second", "startDate": "2025-02-01"}`)
	resp, data = do(t, http.MethodGet, srv.URL+"/api/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []model.Event
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list, 2)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/events/"+ev.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/events/"+ev.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodPut, srv.URL+"/api/events/"+ev.ID, `{"title": "gone"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestICSEndpoints(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	ev := createEvent(t, srv.URL, `{"title": "Standup", "startDate": "2025-01-06T09:00:00Z", "recurrence": {"type": "weekly", "weekdays": [1, 3, 5], "interval": 2}}`)

	resp, data := do(t, http.MethodGet, srv.URL+"/api/events/"+ev.ID+"/ics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	body := string(data)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "UID:"+ev.ID+"@evsched")
	assert.Contains(t, body, "BYDAY=MO,WE,FR")

	resp, data = do(t, http.MethodGet, srv.URL+"/api/calendar.ics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, strings.Count(string(data), "BEGIN:VEVENT"))
}

func TestSyncEndpoint(t *testing.T) {
	fs := &fakeSyncer{res: ics.SyncResult{Subscriptions: 2, Imported: 7, Failed: 1}, err: errors.New("one feed down")}
	srv := newTestServer(t, nil, fs)

	resp, data := do(t, http.MethodPost, srv.URL+"/api/subscriptions/sync", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res ics.SyncResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, fs.res, res)
	assert.Equal(t, 1, fs.calls)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/subscriptions/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	srv := newTestServer(t, cfg, nil)

	resp, _ := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/events", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseTimestamp(t *testing.T) {
	got, err := parseTimestamp("2025-01-06T18:00:00+09:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), got)

	got, err = parseTimestamp("2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), got)

	_, err = parseTimestamp("June 30")
	assert.Error(t, err)
}
