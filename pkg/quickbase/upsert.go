package quickbase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealsync/internal/resilience"
)

// Upserter performs key-based idempotent writes against one table: query
// by business key, then create or update.
type Upserter struct {
	client  Client
	tableID string
	keyFID  int
	ridFID  int
	retry   resilience.RetryConfig
}

// NewUpserter wires an upserter for tableID. keyFID is the business-key
// field, ridFID the table's internal record-id field.
func NewUpserter(client Client, tableID string, keyFID, ridFID int, retry resilience.RetryConfig) *Upserter {
	retry.ShouldRetry = IsRetryable
	retry.OnRetry = resilience.RetryLogger("quickbase", "upsert")
	return &Upserter{
		client:  client,
		tableID: tableID,
		keyFID:  keyFID,
		ridFID:  ridFID,
		retry:   retry,
	}
}

// Upsert writes fields under businessKey. An existing record with that key
// is updated in place; otherwise a new record is created. Returns the
// destination record id and whether the write was a create.
//
// The query-then-write pair is not transactional. Two concurrent
// deliveries for a new key can both see "not found" and both create; the
// source redelivers rarely enough that the race is accepted.
func (u *Upserter) Upsert(ctx context.Context, businessKey string, fields map[int]FieldValue) (int, bool, error) {
	if businessKey == "" {
		return 0, false, eris.New("quickbase: empty business key")
	}

	recordID, err := u.FindRecordID(ctx, businessKey)
	if err != nil {
		return 0, false, err
	}

	row := make(map[int]FieldValue, len(fields)+2)
	for fid, fv := range fields {
		row[fid] = fv
	}
	row[u.keyFID] = FieldValue{Value: businessKey}
	if recordID != 0 {
		row[u.ridFID] = FieldValue{Value: recordID}
	}

	id, err := u.write(ctx, row)
	if err != nil {
		return 0, false, err
	}
	return id, recordID == 0, nil
}

// Update patches an existing record by its known record id, skipping the
// key lookup.
func (u *Upserter) Update(ctx context.Context, recordID int, fields map[int]FieldValue) error {
	row := make(map[int]FieldValue, len(fields)+1)
	for fid, fv := range fields {
		row[fid] = fv
	}
	row[u.ridFID] = FieldValue{Value: recordID}

	_, err := u.write(ctx, row)
	return err
}

// FindRecordID queries for the record holding businessKey. Zero means no
// record exists yet.
func (u *Upserter) FindRecordID(ctx context.Context, businessKey string) (int, error) {
	req := QueryRequest{
		From:   u.tableID,
		Where:  fmt.Sprintf("{%d.EX.'%s'}", u.keyFID, escapeQueryValue(businessKey)),
		Select: []int{u.ridFID},
	}
	resp, err := resilience.DoVal(ctx, u.retry, func(ctx context.Context) (*QueryResponse, error) {
		return u.client.QueryRecords(ctx, req)
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Data) == 0 {
		return 0, nil
	}

	fv, ok := resp.Data[0][fmt.Sprintf("%d", u.ridFID)]
	if !ok {
		return 0, eris.New("quickbase: query response missing record id field")
	}
	n, ok := fv.Value.(float64)
	if !ok {
		return 0, eris.Errorf("quickbase: record id is %T, expected number", fv.Value)
	}
	return int(n), nil
}

func (u *Upserter) write(ctx context.Context, row map[int]FieldValue) (int, error) {
	req := WriteRequest{To: u.tableID, Data: []map[int]FieldValue{row}}
	resp, err := resilience.DoVal(ctx, u.retry, func(ctx context.Context) (*WriteResponse, error) {
		return u.client.WriteRecords(ctx, req)
	})
	if err != nil {
		return 0, err
	}

	ids := append(resp.Metadata.CreatedRecordIDs, resp.Metadata.UpdatedRecordIDs...)
	if len(ids) == 0 {
		return 0, eris.Errorf("quickbase: write accepted no records (line errors: %v)", resp.Metadata.LineErrors)
	}
	return ids[0], nil
}

// IsRetryable classifies an API failure. Rate limiting, timeouts, and
// server errors warrant another attempt; auth, permission, schema, and
// not-found failures never succeed on retry and surface as fatal.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// escapeQueryValue doubles single quotes for the QuickBase query grammar.
func escapeQueryValue(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
