package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jask/deliverydesk/internal/api"
)

// ErrNoShipment is returned by DetailLoader.Load for an empty shipment id.
// Callers treat it as "nothing selected yet", not as a failure.
var ErrNoShipment = errors.New("no shipment selected")

// DetailSource fetches the three collections shown in the detail view.
type DetailSource interface {
	Attachments(ctx context.Context, shipmentID string) ([]api.Attachment, error)
	Returns(ctx context.Context, shipmentID string) ([]api.ReturnRecord, error)
	Tracking(ctx context.Context, shipmentID string) ([]api.TrackingEvent, error)
}

// Snapshot is one complete, consistent read of a shipment's evidence.
type Snapshot struct {
	ShipmentID  string
	Attachments []api.Attachment
	Returns     []api.ReturnRecord
	Tracking    []api.TrackingEvent
	LoadedAt    time.Time
}

// DetailLoader runs the three fetches concurrently and returns either all of
// them or an error.
type DetailLoader struct {
	Source  DetailSource
	Timeout time.Duration
	Log     *zap.Logger
}

// Load fetches attachments, returns and tracking events for shipmentID in
// parallel. Any failure fails the whole load and the other requests are
// cancelled; a blank id returns ErrNoShipment without calling the API.
func (l *DetailLoader) Load(ctx context.Context, shipmentID string) (Snapshot, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return Snapshot{}, ErrNoShipment
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	start := time.Now()

	var (
		attachments []api.Attachment
		returns     []api.ReturnRecord
		tracking    []api.TrackingEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := l.Source.Attachments(gctx, shipmentID)
		if err != nil {
			return fmt.Errorf("attachments: %w", err)
		}
		attachments = out
		return nil
	})
	g.Go(func() error {
		out, err := l.Source.Returns(gctx, shipmentID)
		if err != nil {
			return fmt.Errorf("returns: %w", err)
		}
		returns = out
		return nil
	})
	g.Go(func() error {
		out, err := l.Source.Tracking(gctx, shipmentID)
		if err != nil {
			return fmt.Errorf("tracking: %w", err)
		}
		tracking = out
		return nil
	})
	if err := g.Wait(); err != nil {
		l.logger().Warn("detail load failed",
			zap.String("shipment_id", shipmentID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return Snapshot{}, err
	}

	snap := Snapshot{
		ShipmentID:  shipmentID,
		Attachments: nonNil(attachments),
		Returns:     nonNil(returns),
		Tracking:    nonNil(tracking),
		LoadedAt:    time.Now(),
	}
	l.logger().Debug("detail loaded",
		zap.String("shipment_id", shipmentID),
		zap.Int("attachments", len(snap.Attachments)),
		zap.Int("returns", len(snap.Returns)),
		zap.Int("tracking", len(snap.Tracking)),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

func (l *DetailLoader) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
