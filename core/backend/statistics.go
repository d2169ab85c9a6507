package backend

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/trackww/backend/core/logger"
)

// resourceStatistics represents information about one table
type resourceStatistics struct {
	Resource     string  `json:"resource"`
	Count        int64   `json:"count"`
	SizeMB       float64 `json:"size_mb"`
	AverageSizeB float64 `json:"average_size_b"`
}

func (b *Backend) handleStatistics(router *mux.Router) {
	nillog := logger.Default()
	nillog.Debugln("statistics")
	nillog.Debugln("  handle statistics route: /api/statistics GET")

	router.Handle("/api/statistics", handlers.CompressHandler(http.HandlerFunc(b.statistics))).
		Methods(http.MethodOptions, http.MethodGet)
}

func (b *Backend) statistics(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())

	type namedTable struct{ resource, table string }
	tables := []namedTable{}
	for _, d := range b.Registry.All() {
		tables = append(tables, namedTable{d.Name, d.Table})
	}
	tables = append(tables, namedTable{"tracking", b.config.Tracking.table()})
	// sorted so the response is stable regardless of registry order
	sort.Slice(tables, func(i, j int) bool { return tables[i].resource < tables[j].resource })

	stats := []resourceStatistics{}
	for _, t := range tables {
		row := b.db.QueryRowContext(r.Context(), fmt.Sprintf(
			`SELECT pg_total_relation_size('%s."%s"'), count(*) FROM %s."%s";`,
			b.db.Schema, t.table, b.db.Schema, t.table))
		var size, count int64
		if err := row.Scan(&size, &count); err != nil {
			rlog.WithError(err).Errorf("cannot collect statistics for %s", t.resource)
			writeError(w, http.StatusInternalServerError, "cannot collect statistics")
			return
		}
		var averageSize float64
		if count != 0 {
			averageSize = float64(size / count)
		}
		stats = append(stats, resourceStatistics{
			Resource:     t.resource,
			Count:        count,
			SizeMB:       float64(size) / 1024. / 1024.,
			AverageSizeB: averageSize,
		})
	}
	writeData(w, http.StatusOK, stats)
}
