package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/database/repository"
)

// ShipmentLister is the list endpoint of the API.
type ShipmentLister interface {
	ListShipments(ctx context.Context, f api.ShipmentFilter) ([]api.Shipment, error)
}

// ShipmentService fetches shipment lists and keeps the last result in the
// local cache.
type ShipmentService struct {
	API     ShipmentLister
	Cache   *repository.ShipmentCacheRepo
	Timeout time.Duration
	Log     *zap.Logger
}

func (s *ShipmentService) List(ctx context.Context, f api.ShipmentFilter) ([]api.Shipment, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	list, err := s.API.ListShipments(ctx, f)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []api.Shipment{}
	}
	if s.Cache != nil {
		if err := s.store(context.WithoutCancel(ctx), f, list); err != nil && s.Log != nil {
			s.Log.Warn("shipment cache write failed", zap.Error(err))
		}
	}
	return list, nil
}

func (s *ShipmentService) store(ctx context.Context, f api.ShipmentFilter, list []api.Shipment) error {
	now := time.Now().UTC().Truncate(time.Second)
	rows := make([]repository.CachedShipment, 0, len(list))
	for _, sh := range list {
		payload, err := json.Marshal(sh)
		if err != nil {
			return err
		}
		rows = append(rows, repository.CachedShipment{ID: string(sh.ID), Status: sh.Status, Payload: payload, FetchedAt: now})
	}
	if f == (api.ShipmentFilter{}) {
		return s.Cache.ReplaceAll(ctx, rows)
	}
	for _, r := range rows {
		if err := s.Cache.Upsert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Cached returns the shipments from the last successful fetch, optionally
// restricted to one status. Rows that no longer decode are skipped.
func (s *ShipmentService) Cached(ctx context.Context, status string) ([]api.Shipment, error) {
	if s.Cache == nil {
		return nil, nil
	}
	rows, err := s.Cache.List(ctx, status)
	if err != nil {
		return nil, err
	}
	out := make([]api.Shipment, 0, len(rows))
	for _, r := range rows {
		var sh api.Shipment
		if err := json.Unmarshal(r.Payload, &sh); err != nil {
			continue
		}
		out = append(out, sh)
	}
	return out, nil
}

// Statuses is the cycle order for the list screen's status filter; "" means all.
var Statuses = []string{
	"",
	"ENTREGA_PENDENTE",
	"ENTREGUE_AGUARDANDO_COMPROVANTE",
	"ENTREGA_FINALIZADA",
	"DEVOLUCAO_PARCIAL",
	"DEVOLUCAO_TOTAL",
}

// NextStatus returns the filter after current in Statuses.
func NextStatus(current string) string {
	for i, s := range Statuses {
		if s == current {
			return Statuses[(i+1)%len(Statuses)]
		}
	}
	return Statuses[0]
}
