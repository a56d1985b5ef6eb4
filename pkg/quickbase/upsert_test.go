package quickbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealsync/internal/resilience"
)

func testRetry() resilience.RetryConfig {
	return resilience.FromConfig(3, 1, 5, 2.0, 0)
}

func newTestUpserter(t *testing.T, handler http.HandlerFunc) *Upserter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("example.quickbase.com", "secret-token", WithBaseURL(srv.URL), WithRateLimit(0))
	return NewUpserter(client, "bq1234", 6, 3, testRetry())
}

func TestUpsertCreatesWhenKeyAbsent(t *testing.T) {
	u := newTestUpserter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "example.quickbase.com", r.Header.Get("QB-Realm-Hostname"))
		assert.Equal(t, "QB-USER-TOKEN secret-token", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/records/query":
			var req QueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "bq1234", req.From)
			assert.Equal(t, "{6.EX.'D1'}", req.Where)
			assert.Equal(t, []int{3}, req.Select)
			json.NewEncoder(w).Encode(QueryResponse{})
		case "/records":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			row := req["data"].([]any)[0].(map[string]any)
			_, hasRecordID := row["3"]
			assert.False(t, hasRecordID, "create must not carry the record id field")
			assert.Equal(t, "D1", row["6"].(map[string]any)["value"])
			json.NewEncoder(w).Encode(WriteResponse{Metadata: WriteMetadata{CreatedRecordIDs: []int{101}}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	id, created, err := u.Upsert(context.Background(), "D1", map[int]FieldValue{
		7: {Value: "Jane Doe"},
	})
	require.NoError(t, err)
	assert.Equal(t, 101, id)
	assert.True(t, created)
}

func TestUpsertUpdatesWhenKeyExists(t *testing.T) {
	u := newTestUpserter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/records/query":
			json.NewEncoder(w).Encode(QueryResponse{Data: []map[string]FieldValue{
				{"3": {Value: float64(42)}},
			}})
		case "/records":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			row := req["data"].([]any)[0].(map[string]any)
			assert.Equal(t, float64(42), row["3"].(map[string]any)["value"])
			json.NewEncoder(w).Encode(WriteResponse{Metadata: WriteMetadata{UpdatedRecordIDs: []int{42}}})
		}
	})

	id, created, err := u.Upsert(context.Background(), "D1", map[int]FieldValue{
		7: {Value: "Jane Doe"},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.False(t, created)
}

// Re-running the same delivery hits the same record: second pass queries,
// finds the row the first pass created, and updates it.
func TestUpsertRedeliveryIsIdempotent(t *testing.T) {
	var recordExists atomic.Bool
	var creates, updates atomic.Int32

	u := newTestUpserter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/records/query":
			if recordExists.Load() {
				json.NewEncoder(w).Encode(QueryResponse{Data: []map[string]FieldValue{
					{"3": {Value: float64(7)}},
				}})
			} else {
				json.NewEncoder(w).Encode(QueryResponse{})
			}
		case "/records":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			row := req["data"].([]any)[0].(map[string]any)
			if _, hasRID := row["3"]; hasRID {
				updates.Add(1)
				json.NewEncoder(w).Encode(WriteResponse{Metadata: WriteMetadata{UpdatedRecordIDs: []int{7}}})
			} else {
				creates.Add(1)
				recordExists.Store(true)
				json.NewEncoder(w).Encode(WriteResponse{Metadata: WriteMetadata{CreatedRecordIDs: []int{7}}})
			}
		}
	})

	fields := map[int]FieldValue{7: {Value: "Jane Doe"}}

	first, created, err := u.Upsert(context.Background(), "D1", fields)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := u.Upsert(context.Background(), "D1", fields)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), creates.Load())
	assert.Equal(t, int32(1), updates.Load())
}

func TestUpsertZeroAcceptedRecordsIsFailure(t *testing.T) {
	u := newTestUpserter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/records/query":
			json.NewEncoder(w).Encode(QueryResponse{})
		case "/records":
			json.NewEncoder(w).Encode(WriteResponse{Metadata: WriteMetadata{
				LineErrors: map[string][]string{"1": {"Incompatible value for field with ID 14"}},
			}})
		}
	})

	_, _, err := u.Upsert(context.Background(), "D1", map[int]FieldValue{7: {Value: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepted no records")
}

func TestUpsertRetriesRateLimit(t *testing.T) {
	var queryCalls atomic.Int32
	u := newTestUpserter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/records/query":
			if queryCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"message":"rate limited"}`))
				return
			}
			json.NewEncoder(w).Encode(QueryResponse{})
		case "/records":
			json.NewEncoder(w).Encode(WriteResponse{Metadata: WriteMetadata{CreatedRecordIDs: []int{1}}})
		}
	})

	_, _, err := u.Upsert(context.Background(), "D1", map[int]FieldValue{7: {Value: "x"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), queryCalls.Load())
}

func TestUpsertDoesNotRetryFatalStatuses(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		var calls atomic.Int32
		u := newTestUpserter(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
			w.Write([]byte(`{"message":"nope"}`))
		})

		_, _, err := u.Upsert(context.Background(), "D1", map[int]FieldValue{7: {Value: "x"}})
		require.Error(t, err, "status %d", status)
		assert.Equal(t, int32(1), calls.Load(), "status %d must not retry", status)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, status, apiErr.StatusCode)
	}
}

func TestUpsertEmptyKeyRejected(t *testing.T) {
	u := newTestUpserter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, _, err := u.Upsert(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestEscapeQueryValue(t *testing.T) {
	assert.Equal(t, "D''1", escapeQueryValue("D'1"))
	assert.Equal(t, "plain", escapeQueryValue("plain"))
}
