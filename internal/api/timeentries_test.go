package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/monosense-io/synergyflow/internal/conf"
	"github.com/monosense-io/synergyflow/internal/datastore"
	"github.com/monosense-io/synergyflow/internal/events"
)

// MockDataStore is a testify mock for the datastore interface.
type MockDataStore struct {
	mock.Mock
}

func (m *MockDataStore) Open() error  { return m.Called().Error(0) }
func (m *MockDataStore) Close() error { return m.Called().Error(0) }

func (m *MockDataStore) SaveTimeEntries(entries []*datastore.TimeEntry) error {
	return m.Called(entries).Error(0)
}

func (m *MockDataStore) GetTimeEntry(id string) (datastore.TimeEntry, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.TimeEntry), args.Error(1)
}

func (m *MockDataStore) GetTimeEntriesByUser(userID string) ([]datastore.TimeEntry, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.TimeEntry), args.Error(1)
}

func (m *MockDataStore) AdvanceTimeEntryStatus(id, status, errorMessage string) error {
	return m.Called(id, status, errorMessage).Error(0)
}

func (m *MockDataStore) SaveWorklog(worklog *datastore.Worklog) error {
	return m.Called(worklog).Error(0)
}

func (m *MockDataStore) GetWorklogsForEntity(entityType, entityID string) ([]datastore.Worklog, error) {
	args := m.Called(entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.Worklog), args.Error(1)
}

func (m *MockDataStore) CountWorklogsForEntry(timeEntryID string) (int64, error) {
	args := m.Called(timeEntryID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataStore) IsEventProcessed(eventKey string) (bool, error) {
	args := m.Called(eventKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataStore) MarkEventProcessed(processed *datastore.ProcessedEvent) error {
	return m.Called(processed).Error(0)
}

// capturingPublisher records every published event.
type capturingPublisher struct {
	published []events.Event
	full      bool
}

func (p *capturingPublisher) TryPublish(event events.Event) bool {
	if p.full {
		return false
	}
	p.published = append(p.published, event)
	return true
}

func newTestController(ds datastore.Interface, publisher Publisher) (*Controller, *echo.Echo) {
	e := echo.New()
	settings := &conf.Settings{Version: "test"}
	controller := New(e, ds, settings, publisher, nil)
	return controller, e
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const validEntryBody = `{
	"userId": "user-1",
	"durationMinutes": 45,
	"description": "incident mitigation",
	"targetEntities": [{"type": "INCIDENT", "entityId": "INC-123", "entityTitle": "Login outage"}]
}`

func TestCreateTimeEntryAccepted(t *testing.T) {
	ds := new(MockDataStore)
	publisher := &capturingPublisher{}
	_, e := newTestController(ds, publisher)

	var saved []*datastore.TimeEntry
	ds.On("SaveTimeEntries", mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(0).([]*datastore.TimeEntry)
	}).Return(nil)

	rec := doRequest(e, http.MethodPost, "/api/v1/time-entries", validEntryBody)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp AcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TrackingID)
	require.Len(t, resp.TimeEntryIDs, 1)

	require.Len(t, saved, 1)
	assert.Equal(t, datastore.StatusConfirmed, saved[0].Status)
	assert.Equal(t, resp.TrackingID, saved[0].TrackingID)
	assert.False(t, saved[0].OccurredAt.IsZero(), "occurredAt defaults to submission time")
	require.Len(t, saved[0].Targets, 1)
	assert.Equal(t, "INC-123", saved[0].Targets[0].EntityID)

	// The mirroring event goes out only after the entry is durable.
	require.Len(t, publisher.published, 1)
	created, ok := publisher.published[0].(*events.TimeEntryCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, saved[0].ID, created.TimeEntryID)
	assert.Equal(t, resp.TrackingID, created.TrackingID)

	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	ds.AssertExpectations(t)
}

func TestCreateTimeEntryValidationProblem(t *testing.T) {
	ds := new(MockDataStore)
	publisher := &capturingPublisher{}
	_, e := newTestController(ds, publisher)

	body := `{
		"userId": "user-1",
		"durationMinutes": -5,
		"description": "negative time",
		"targetEntities": [{"type": "INCIDENT", "entityId": "INC-1"}]
	}`
	rec := doRequest(e, http.MethodPost, "/api/v1/time-entries", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/problem+json")

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Validation failed", problem.Title)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	require.NotEmpty(t, problem.Fields)
	assert.Equal(t, "durationMinutes", problem.Fields[0].Name)
	assert.Equal(t, "MIN", problem.Fields[0].Code)

	assert.Empty(t, publisher.published, "invalid entries never reach the pipeline")
	ds.AssertNotCalled(t, "SaveTimeEntries", mock.Anything)
}

func TestCreateTimeEntryRequiresTargets(t *testing.T) {
	ds := new(MockDataStore)
	_, e := newTestController(ds, &capturingPublisher{})

	body := `{"userId": "user-1", "durationMinutes": 30, "description": "untargeted", "targetEntities": []}`
	rec := doRequest(e, http.MethodPost, "/api/v1/time-entries", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotEmpty(t, problem.Fields)
	assert.Equal(t, "targetEntities", problem.Fields[0].Name)
}

func TestCreateTimeEntryPersistFailure(t *testing.T) {
	ds := new(MockDataStore)
	publisher := &capturingPublisher{}
	_, e := newTestController(ds, publisher)

	ds.On("SaveTimeEntries", mock.Anything).Return(assert.AnError)

	rec := doRequest(e, http.MethodPost, "/api/v1/time-entries", validEntryBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, publisher.published, "no event without a durable entry")
}

func TestCreateTimeEntriesBulkAtomic(t *testing.T) {
	ds := new(MockDataStore)
	publisher := &capturingPublisher{}
	_, e := newTestController(ds, publisher)

	var saved []*datastore.TimeEntry
	ds.On("SaveTimeEntries", mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(0).([]*datastore.TimeEntry)
	}).Return(nil)

	body := `{"entries": [` + validEntryBody + `,` + validEntryBody + `]}`
	rec := doRequest(e, http.MethodPost, "/api/v1/time-entries/bulk", body)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp BulkAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.TrackingIDs, 2)
	assert.NotEqual(t, resp.TrackingIDs[0], resp.TrackingIDs[1])

	// One datastore call carries both entries so persistence is atomic.
	ds.AssertNumberOfCalls(t, "SaveTimeEntries", 1)
	require.Len(t, saved, 2)
	assert.Len(t, publisher.published, 2)
}

func TestCreateTimeEntriesBulkRejectsInvalidMember(t *testing.T) {
	ds := new(MockDataStore)
	publisher := &capturingPublisher{}
	_, e := newTestController(ds, publisher)

	invalid := `{"userId": "", "durationMinutes": 10, "description": "x",
		"targetEntities": [{"type": "TASK", "entityId": "T-1"}]}`
	body := `{"entries": [` + validEntryBody + `,` + invalid + `]}`
	rec := doRequest(e, http.MethodPost, "/api/v1/time-entries/bulk", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, publisher.published)
	ds.AssertNotCalled(t, "SaveTimeEntries", mock.Anything)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotEmpty(t, problem.Fields)
	assert.Contains(t, problem.Fields[0].Name, "entries[1]")
}

func TestGetTimeEntryNotFound(t *testing.T) {
	ds := new(MockDataStore)
	_, e := newTestController(ds, nil)

	ds.On("GetTimeEntry", "missing").Return(datastore.TimeEntry{}, datastore.ErrTimeEntryNotFound)

	rec := doRequest(e, http.MethodGet, "/api/v1/time-entries/missing", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/problem+json")

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Time entry not found", problem.Title)
	assert.NotEmpty(t, problem.CorrelationID)
}

func TestGetTimeEntryFound(t *testing.T) {
	ds := new(MockDataStore)
	_, e := newTestController(ds, nil)

	ds.On("GetTimeEntry", "e1").Return(datastore.TimeEntry{
		ID:         "e1",
		UserID:     "user-1",
		Status:     datastore.StatusCompleted,
		TrackingID: "track-1",
		Targets: []datastore.TimeEntryTarget{
			{EntityType: "INCIDENT", EntityID: "INC-1"},
		},
	}, nil)

	rec := doRequest(e, http.MethodGet, "/api/v1/time-entries/e1", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TimeEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.ID)
	assert.Equal(t, datastore.StatusCompleted, resp.Status)
	require.Len(t, resp.Targets, 1)
}

func TestListTimeEntriesRequiresUser(t *testing.T) {
	ds := new(MockDataStore)
	_, e := newTestController(ds, nil)

	rec := doRequest(e, http.MethodGet, "/api/v1/time-entries", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTimeEntriesCaches(t *testing.T) {
	ds := new(MockDataStore)
	_, e := newTestController(ds, nil)

	ds.On("GetTimeEntriesByUser", "user-1").Return([]datastore.TimeEntry{{ID: "e1"}}, nil).Once()

	for range 2 {
		rec := doRequest(e, http.MethodGet, "/api/v1/time-entries?userId=user-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	ds.AssertNumberOfCalls(t, "GetTimeEntriesByUser", 1)
}

func TestCorrelationIDIsPropagated(t *testing.T) {
	ds := new(MockDataStore)
	publisher := &capturingPublisher{}
	_, e := newTestController(ds, publisher)

	ds.On("SaveTimeEntries", mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/time-entries", strings.NewReader(validEntryBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Correlation-ID", "corr-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "corr-42", rec.Header().Get("X-Correlation-ID"))

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "corr-42", publisher.published[0].GetCorrelationID())
}
