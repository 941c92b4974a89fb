package graph

import (
	"sort"

	"github.com/raphaelgruber/voxchat/internal/metrics"
)

// ServerStats is the GraphQL shape of a metrics snapshot. Backends are a
// list sorted by model because GraphQL has no map type.
type ServerStats struct {
	UptimeSeconds float64                    `json:"uptimeSeconds"`
	Gateway       *metrics.OperationSnapshot `json:"gateway"`
	DBQuery       *metrics.OperationSnapshot `json:"dbQuery"`
	StorageWrite  *metrics.OperationSnapshot `json:"storageWrite"`
	Backends      []BackendStats             `json:"backends"`
}

// BackendStats holds the call metrics of one speech backend.
type BackendStats struct {
	Model string                     `json:"model"`
	Stats *metrics.OperationSnapshot `json:"stats"`
}

func serverStatsToGraphQL(snap metrics.Snapshot) *ServerStats {
	out := &ServerStats{
		UptimeSeconds: snap.UptimeSeconds,
		Gateway:       snap.Gateway,
		DBQuery:       snap.DBQuery,
		StorageWrite:  snap.StorageWrite,
		Backends:      make([]BackendStats, 0, len(snap.Backends)),
	}
	for model, stats := range snap.Backends {
		out.Backends = append(out.Backends, BackendStats{Model: model, Stats: stats})
	}
	sort.Slice(out.Backends, func(i, j int) bool {
		return out.Backends[i].Model < out.Backends[j].Model
	})
	return out
}
