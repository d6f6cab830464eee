package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/database/repository"
)

// Action names written to the journal.
const (
	ActionRefresh  = "refresh"
	ActionUpload   = "upload"
	ActionFinalize = "finalize"
)

// Journal appends workflow outcomes to the local activity table. Write
// failures are logged and never surface to the user.
type Journal struct {
	Activity *repository.ActivityRepo
	Log      *zap.Logger
}

// Record appends one action outcome. It is a no-op on a nil Journal; callers
// pass a context detached from the view so a closed view still gets its entry.
func (j *Journal) Record(ctx context.Context, shipmentID, action string, ok bool, message string) {
	if j == nil || j.Activity == nil {
		return
	}
	err := j.Activity.Insert(ctx, repository.Activity{
		ID:         uuid.NewString(),
		ShipmentID: shipmentID,
		Action:     action,
		OK:         ok,
		Message:    message,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	})
	if err != nil && j.Log != nil {
		j.Log.Warn("journal write failed", zap.String("shipment_id", shipmentID), zap.String("action", action), zap.Error(err))
	}
}

// Recent returns the newest entries, for one shipment when shipmentID is set.
func (j *Journal) Recent(ctx context.Context, shipmentID string, limit int) ([]repository.Activity, error) {
	if j == nil || j.Activity == nil {
		return nil, nil
	}
	return j.Activity.List(ctx, repository.ActivityFilters{ShipmentID: shipmentID, Limit: limit})
}
