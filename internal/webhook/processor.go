// Package webhook ties the pipeline together: parse and accept a
// delivery, build and validate the destination record, upsert by deal id,
// then launch the asynchronous enrichment pass.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dealsync/internal/catalog"
	"github.com/sells-group/dealsync/internal/deal"
	"github.com/sells-group/dealsync/internal/dlq"
	"github.com/sells-group/dealsync/internal/mapping"
	"github.com/sells-group/dealsync/pkg/quickbase"
)

// Upserter is the destination-side write operation.
type Upserter interface {
	Upsert(ctx context.Context, businessKey string, fields map[int]quickbase.FieldValue) (int, bool, error)
}

// Enricher launches the post-upsert enrichment pass.
type Enricher interface {
	Run(recordID int, dealID, customerID string)
}

// ValidationError reports a built record the catalog rejects. It is fatal
// to the delivery: the destination would refuse the write wholesale.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record failed validation: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Result summarizes one successfully processed delivery.
type Result struct {
	DealID        string            `json:"deal_id"`
	RecordID      int               `json:"record_id"`
	Created       bool              `json:"created"`
	FieldsWritten int               `json:"fields_written"`
	Warnings      []mapping.Warning `json:"warnings,omitempty"`
	Duration      time.Duration     `json:"-"`
}

// Processor runs the full sync pipeline for one delivery.
type Processor struct {
	builder  *mapping.Builder
	catalog  *catalog.Catalog
	upserter Upserter
	enricher Enricher
	deadLQ   dlq.Store
	stats    *Stats
	log      *zap.Logger
}

// NewProcessor wires the pipeline. enricher and deadLQ may be nil; the
// pipeline then skips enrichment and dead-lettering respectively.
func NewProcessor(builder *mapping.Builder, cat *catalog.Catalog, upserter Upserter, enricher Enricher, deadLQ dlq.Store) *Processor {
	return &Processor{
		builder:  builder,
		catalog:  cat,
		upserter: upserter,
		enricher: enricher,
		deadLQ:   deadLQ,
		stats:    NewStats(),
		log:      zap.L().Named("webhook"),
	}
}

// Stats exposes the in-process counters.
func (p *Processor) Stats() *Stats {
	return p.stats
}

// Process handles one delivery body end to end. Shape errors come back as
// *deal.ShapeError so the handler can answer 400; everything else is a
// server-side failure. Re-delivery of the same deal id is safe: the
// upsert updates in place.
func (p *Processor) Process(ctx context.Context, body []byte) (*Result, error) {
	start := time.Now()
	p.stats.Received()

	doc, err := deal.Parse(body)
	if err != nil {
		p.stats.Failed()
		return nil, &deal.ShapeError{Field: "body"}
	}
	if err := doc.Accept(); err != nil {
		p.stats.Failed()
		return nil, err
	}

	dealID := doc.DealID()
	log := p.log.With(zap.String("deal_id", dealID), zap.String("event", doc.Event()))

	record, warnings, err := p.builder.Build(doc)
	if err != nil {
		p.stats.Failed()
		return nil, err
	}
	for _, w := range warnings {
		log.Warn("field coerced lossily",
			zap.Int("field", w.FieldID),
			zap.String("label", w.Label),
			zap.String("problem", w.Message))
	}

	problems, validationWarnings := mapping.Validate(record, p.catalog)
	if len(problems) > 0 {
		p.stats.Failed()
		verr := &ValidationError{Problems: problems}
		p.deadLetter(ctx, dealID, body, verr, "validation")
		return nil, verr
	}
	for _, w := range validationWarnings {
		log.Warn("field type drift",
			zap.Int("field", w.FieldID),
			zap.String("label", w.Label),
			zap.String("problem", w.Message))
	}

	recordID, created, err := p.upserter.Upsert(ctx, dealID, toWire(record))
	if err != nil {
		p.stats.Failed()
		p.deadLetter(ctx, dealID, body, err, "upsert")
		return nil, err
	}

	if p.enricher != nil {
		go p.enricher.Run(recordID, dealID, doc.CustomerID())
	}

	p.stats.Succeeded()
	res := &Result{
		DealID:        dealID,
		RecordID:      recordID,
		Created:       created,
		FieldsWritten: len(record),
		Warnings:      warnings,
		Duration:      time.Since(start),
	}
	log.Info("deal synced",
		zap.Int("record_id", recordID),
		zap.Bool("created", created),
		zap.Int("fields", res.FieldsWritten),
		zap.Duration("took", res.Duration))
	return res, nil
}

func (p *Processor) deadLetter(ctx context.Context, dealID string, body []byte, cause error, errorType string) {
	if p.deadLQ == nil {
		return
	}
	id, err := p.deadLQ.Save(ctx, dealID, body, cause, errorType)
	if err != nil {
		p.log.Error("dead-letter save failed", zap.String("deal_id", dealID), zap.Error(err))
		return
	}
	p.log.Warn("delivery dead-lettered",
		zap.String("deal_id", dealID),
		zap.String("dlq_id", id),
		zap.String("error_type", errorType))
}

// IsShapeError reports whether err rejects the delivery's structure.
func IsShapeError(err error) bool {
	var se *deal.ShapeError
	return errors.As(err, &se)
}

// toWire wraps a built record in the destination API's value envelopes.
func toWire(rec mapping.Record) map[int]quickbase.FieldValue {
	wire := make(map[int]quickbase.FieldValue, len(rec))
	for fid, fv := range rec {
		wire[fid] = quickbase.FieldValue{Value: fv.Value}
	}
	return wire
}
