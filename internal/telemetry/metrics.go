package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pda-zone/engine"

// Metrics holds the OTel instruments for the engine hot paths. A nil
// *Metrics is safe to call, so tests and tools can skip the setup.
type Metrics struct {
	reportsProcessed  metric.Int64Counter
	dosesApplied      metric.Int64Counter
	doseTotal         metric.Float64Counter
	claimsWon         metric.Int64Counter
	claimsLost        metric.Int64Counter
	capturesCompleted metric.Int64Counter
	respawnsActivated metric.Int64Counter
	playersRevived    metric.Int64Counter
}

// NewMetrics registers the engine instruments against the global provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.reportsProcessed, err = meter.Int64Counter("zone_engine.reports_processed",
		metric.WithDescription("Location reports accepted and processed")); err != nil {
		return nil, err
	}
	if m.dosesApplied, err = meter.Int64Counter("zone_engine.doses_applied",
		metric.WithDescription("Radiation accrual results persisted")); err != nil {
		return nil, err
	}
	if m.doseTotal, err = meter.Float64Counter("zone_engine.dose_total",
		metric.WithDescription("Total radiation dose dealt")); err != nil {
		return nil, err
	}
	if m.claimsWon, err = meter.Int64Counter("zone_engine.claims_won",
		metric.WithDescription("Guarded claim updates that won")); err != nil {
		return nil, err
	}
	if m.claimsLost, err = meter.Int64Counter("zone_engine.claims_lost",
		metric.WithDescription("Guarded claim updates that lost the race")); err != nil {
		return nil, err
	}
	if m.capturesCompleted, err = meter.Int64Counter("zone_engine.captures_completed",
		metric.WithDescription("Control point captures completed")); err != nil {
		return nil, err
	}
	if m.respawnsActivated, err = meter.Int64Counter("zone_engine.respawns_activated",
		metric.WithDescription("Artifacts returned to the field by the sweeper")); err != nil {
		return nil, err
	}
	if m.playersRevived, err = meter.Int64Counter("zone_engine.players_revived",
		metric.WithDescription("Dead players revived in respawn zones")); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) ReportProcessed(ctx context.Context) {
	if m == nil {
		return
	}
	m.reportsProcessed.Add(ctx, 1)
}

func (m *Metrics) DoseApplied(ctx context.Context, dose float64) {
	if m == nil {
		return
	}
	m.dosesApplied.Add(ctx, 1)
	m.doseTotal.Add(ctx, dose)
}

func (m *Metrics) ClaimWon(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.claimsWon.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) ClaimLost(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.claimsLost.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) CaptureCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.capturesCompleted.Add(ctx, 1)
}

func (m *Metrics) RespawnsActivated(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.respawnsActivated.Add(ctx, int64(n))
}

func (m *Metrics) PlayerRevived(ctx context.Context) {
	if m == nil {
		return
	}
	m.playersRevived.Add(ctx, 1)
}
