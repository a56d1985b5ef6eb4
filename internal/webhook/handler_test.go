package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postDelivery(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/enerflo", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerSuccess(t *testing.T) {
	up := &fakeUpserter{recordID: 7}
	p := testProcessor(t, up, nil, nil)
	h := Handler(p, 1<<20)

	rec := postDelivery(t, h, validBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		DealID        string `json:"deal_id"`
		RecordID      int    `json:"record_id"`
		Created       bool   `json:"created"`
		FieldsWritten int    `json:"fields_written"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "D1", resp.DealID)
	assert.Equal(t, 7, resp.RecordID)
	assert.True(t, resp.Created)
	assert.Greater(t, resp.FieldsWritten, 0)
}

func TestHandlerBadShapeIs400(t *testing.T) {
	p := testProcessor(t, &fakeUpserter{}, nil, nil)
	h := Handler(p, 1<<20)

	rec := postDelivery(t, h, `{"event": "e", "payload": {"deal": {}, "customer": {"id": "C"}, "proposal": {"id": "P"}}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload.deal.id")
	assert.Contains(t, rec.Body.String(), "took_ms")
}

func TestHandlerPipelineFailureIs500(t *testing.T) {
	up := &fakeUpserter{err: errors.New("destination down")}
	p := testProcessor(t, up, nil, nil)
	h := Handler(p, 1<<20)

	rec := postDelivery(t, h, validBody)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		Error  string `json:"error"`
		TookMs *int64 `json:"took_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "destination down")
	require.NotNil(t, resp.TookMs, "failure body must carry the processing duration")
	assert.GreaterOrEqual(t, *resp.TookMs, int64(0))
}

func TestHandlerOversizedBodyIs413(t *testing.T) {
	p := testProcessor(t, &fakeUpserter{}, nil, nil)
	h := Handler(p, 64)

	rec := postDelivery(t, h, `{"pad": "`+strings.Repeat("x", 256)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	p := testProcessor(t, &fakeUpserter{}, nil, nil)
	_, err := p.Process(context.Background(), []byte(validBody))
	require.NoError(t, err)

	creds := map[string]bool{
		"qb_realm":        true,
		"qb_table_id":     true,
		"qb_user_token":   true,
		"enerflo_api_key": true,
	}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler(p.Stats(), creds).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status      string            `json:"status"`
		Credentials map[string]string `json:"credentials"`
		Stats       struct {
			Received  int64 `json:"received"`
			Succeeded int64 `json:"succeeded"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "configured", resp.Credentials["qb_realm"])
	assert.Equal(t, "configured", resp.Credentials["enerflo_api_key"])
	assert.Equal(t, int64(1), resp.Stats.Received)
	assert.Equal(t, int64(1), resp.Stats.Succeeded)
}

func TestHealthHandlerReportsMissingCredentials(t *testing.T) {
	p := testProcessor(t, &fakeUpserter{}, nil, nil)
	creds := map[string]bool{
		"qb_realm":      true,
		"qb_user_token": false,
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler(p.Stats(), creds).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status      string            `json:"status"`
		Credentials map[string]string `json:"credentials"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "configured", resp.Credentials["qb_realm"])
	assert.Equal(t, "missing", resp.Credentials["qb_user_token"])
}
