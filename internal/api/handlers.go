package api

import (
	"encoding/json"
	"net/http"

	"codeberg.org/mutker/metricsd/internal/errors"
	"codeberg.org/mutker/metricsd/internal/metrics"
)

type samplePayload struct {
	LatencyMs float64 `json:"latency_ms"`
}

type snapshotPayload struct {
	Timestamp           int64   `json:"timestamp"`
	ConnectedClients    int     `json:"connected_clients"`
	UpdatesPerSecond    float64 `json:"updates_per_second"`
	AverageUpdateTimeMs float64 `json:"average_update_time_ms"`
	MemoryUsageMb       float64 `json:"memory_usage_mb"`
	CPUUsagePercent     float64 `json:"cpu_usage_percent"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRecordSample(w http.ResponseWriter, r *http.Request) {
	var payload samplePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sample payload")
		return
	}

	s.ring.Record(s.clock(), payload.LatencyMs)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, _ *http.Request) {
	snapshots, err := s.store.List()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list snapshots")
		writeError(w, http.StatusInternalServerError, "snapshot store unavailable")

		return
	}

	payload := make([]snapshotPayload, 0, len(snapshots))
	for _, snapshot := range snapshots {
		payload = append(payload, toPayload(snapshot))
	}

	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := s.store.Latest()
	if err != nil {
		if errors.IsCode(err, errors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshots recorded yet")
			return
		}

		s.log.Error().Err(err).Msg("Failed to read latest snapshot")
		writeError(w, http.StatusInternalServerError, "snapshot store unavailable")

		return
	}

	writeJSON(w, http.StatusOK, toPayload(snapshot))
}

func toPayload(snapshot *metrics.Snapshot) snapshotPayload {
	return snapshotPayload{
		Timestamp:           snapshot.Timestamp.UnixMilli(),
		ConnectedClients:    snapshot.ConnectedClients,
		UpdatesPerSecond:    snapshot.UpdatesPerSecond,
		AverageUpdateTimeMs: snapshot.AverageUpdateTimeMs,
		MemoryUsageMb:       snapshot.MemoryUsageMb,
		CPUUsagePercent:     snapshot.CPUUsagePercent,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Error: msg})
}
