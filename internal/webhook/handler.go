package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler answers POST deliveries from the Enerflo webhook producer.
// Structurally invalid payloads get a 400 so the producer stops
// redelivering them; pipeline failures get a 500 so it retries.
func Handler(p *Processor, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error":   "request body too large",
				"took_ms": time.Since(start).Milliseconds(),
			})
			return
		}

		res, err := p.Process(r.Context(), body)
		if err != nil {
			status := http.StatusInternalServerError
			if IsShapeError(err) {
				status = http.StatusBadRequest
			} else {
				zap.L().Error("delivery processing failed", zap.Error(err))
			}
			writeJSON(w, status, map[string]any{
				"error":   err.Error(),
				"took_ms": time.Since(start).Milliseconds(),
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"deal_id":        res.DealID,
			"record_id":      res.RecordID,
			"created":        res.Created,
			"fields_written": res.FieldsWritten,
			"warnings":       len(res.Warnings),
			"took_ms":        res.Duration.Milliseconds(),
		})
	}
}

// HealthHandler reports liveness, processing counters, and which API
// credentials are present. creds maps a credential name to whether it is
// set; no live check is performed.
func HealthHandler(stats *Stats, creds map[string]bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		credentials := make(map[string]string, len(creds))
		for name, set := range creds {
			if set {
				credentials[name] = "configured"
			} else {
				credentials[name] = "missing"
				status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      status,
			"credentials": credentials,
			"stats":       stats.Snapshot(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
