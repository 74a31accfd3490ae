package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/polewatch/control-plane/pkg/models"
)

var (
	// FleetNodesTotal is the number of nodes known to the fleet
	FleetNodesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_nodes_total",
			Help: "Number of nodes known to the fleet",
		},
	)

	// FleetNodesFaulty is the number of nodes currently marked faulty
	FleetNodesFaulty = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_nodes_faulty",
			Help: "Number of nodes currently marked faulty",
		},
	)

	// FleetFaultPercentage is the share of the fleet marked faulty
	FleetFaultPercentage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_fault_percentage",
			Help: "Percentage of the fleet currently marked faulty",
		},
	)
)

// UpdateFleet publishes one fleet stats sample to the gauges.
func UpdateFleet(stats models.Stats) {
	FleetNodesTotal.Set(float64(stats.TotalNodes))
	FleetNodesFaulty.Set(float64(stats.ActiveFaultsCount))
	FleetFaultPercentage.Set(stats.FaultPercentage)
}

// StatsSource is anything that can compute fleet stats. Implemented by
// store.NodeStore.
type StatsSource interface {
	Stats(ctx context.Context) (models.Stats, error)
}

// StartFleetSampler refreshes the fleet gauges on a fixed period until the
// context is cancelled.
func StartFleetSampler(ctx context.Context, source StatsSource, interval time.Duration, logger *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := source.Stats(ctx)
				if err != nil {
					logger.Warn("fleet stats sample failed", zap.Error(err))
					continue
				}
				UpdateFleet(stats)
			}
		}
	}()
}
