package supabase

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
)

// ============================================================
// Work order store — bulk insert of normalized upload batches
// ============================================================

const workOrdersTable = "work_orders"

// InsertWorkOrders bulk-inserts a normalized batch. PostgREST accepts a JSON
// array for multi-row inserts; the whole batch succeeds or fails together.
func (c *Client) InsertWorkOrders(ctx context.Context, orders []domain.WorkOrder) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertWorkOrders")
	defer span.End()
	span.SetAttributes(attribute.Int("workorders.count", len(orders)))

	if len(orders) == 0 {
		return 0, nil
	}

	if _, err := c.doPost(ctx, workOrdersTable, orders); err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/work_orders", Err: err}
	}

	return len(orders), nil
}
