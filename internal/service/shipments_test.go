package service

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/database"
	"github.com/jask/deliverydesk/internal/database/repository"
	"github.com/jask/deliverydesk/internal/testdata"
)

func TestShipmentListCachesResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := testdata.NewServer(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client := api.NewClient(ts.URL+"/api", srv.IssueToken(testdata.DemoLogin))

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := &ShipmentService{API: client, Cache: repository.NewShipmentCacheRepo(db), Timeout: 5 * time.Second}

	all, err := svc.List(ctx, api.ShipmentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 12)

	cached, err := svc.Cached(ctx, "")
	require.NoError(t, err)
	require.Len(t, cached, 12)
	require.Equal(t, all[0].ID, cached[0].ID)
	require.Equal(t, all[0].Client, cached[0].Client)

	finalized, err := svc.Cached(ctx, "ENTREGA_FINALIZADA")
	require.NoError(t, err)
	require.Len(t, finalized, 3)

	none, err := svc.List(ctx, api.ShipmentFilter{Status: "DEVOLUCAO_TOTAL"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestNextStatusCycles(t *testing.T) {
	t.Parallel()
	cur := ""
	seen := map[string]bool{}
	for range Statuses {
		cur = NextStatus(cur)
		seen[cur] = true
	}
	require.Equal(t, "", cur)
	require.Len(t, seen, len(Statuses))
	require.Equal(t, "", NextStatus("UNKNOWN"))
}

func TestSearchShipments(t *testing.T) {
	t.Parallel()
	list := []api.Shipment{
		{ID: "1", InvoiceNumber: "120007", Client: "FARMACIA SAO JOAO", Carrier: "JAMEF"},
		{ID: "2", InvoiceNumber: "120014", Client: "CASA DAS TINTAS", Carrier: "BRASPRESS"},
		{ID: "3", InvoiceNumber: "120021", Client: "MERCADO BOM PRECO", Carrier: "RODONAVES"},
	}

	require.Equal(t, list, SearchShipments(list, " "))

	got := SearchShipments(list, "120014")
	require.Len(t, got, 1)
	require.Equal(t, api.ID("2"), got[0].ID)

	got = SearchShipments(list, "farmacia")
	require.Len(t, got, 1)
	require.Equal(t, api.ID("1"), got[0].ID)

	got = SearchShipments(list, "MERCDO")
	require.Len(t, got, 1, "one edit away")
	require.Equal(t, api.ID("3"), got[0].ID)

	require.Empty(t, SearchShipments(list, "XYZ"))
}

func TestMaintenanceReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	journal, db := openJournal(t)
	journal.Record(ctx, "1", ActionRefresh, true, "ok")

	require.NoError(t, (&MaintenanceService{DB: db}).Reset(ctx))
	left, err := journal.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Empty(t, left)
}
