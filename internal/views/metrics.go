package views

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reestrsi_saves_total",
		Help: "Objects persisted by the admin pages",
	}, []string{"model", "action"})

	noopSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reestrsi_noop_saves_total",
		Help: "Valid submissions skipped because nothing changed",
	}, []string{"model"})

	filesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reestrsi_files_removed_total",
		Help: "Uploaded files removed after a replace, clear or delete",
	})
)
