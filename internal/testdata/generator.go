package testdata

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/mockapi"
)

// Demo credentials accepted by a seeded mock API.
const (
	DemoLogin    = "operador"
	DemoPassword = "entrega123"
)

var (
	carriers = []string{"RODONAVES", "JAMEF", "BRASPRESS", "TNT MERCURIO", "PATRUS"}
	clients  = []string{"MERCADO BOM PRECO LTDA", "FARMACIA SAO JOAO", "AUTO PECAS RIO BRANCO", "CASA DAS TINTAS", "SUPERMERCADO IDEAL"}
	cities   = [][2]string{{"PORTO ALEGRE", "RS"}, {"CURITIBA", "PR"}, {"SAO PAULO", "SP"}, {"JOINVILLE", "SC"}, {"CAMPINAS", "SP"}}
	drivers  = []string{"Carlos Souza", "Ana Lima", "Marcos Pereira"}
)

// Seed fills srv with sample shipments. The output is the same for every call
// with the same now, so demos and tests see stable ids.
func Seed(srv *mockapi.Server, now time.Time) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 12; i++ {
		city := cities[r.Intn(len(cities))]
		loaded := now.AddDate(0, 0, -r.Intn(10)-2).Truncate(time.Hour)
		expected := loaded.AddDate(0, 0, 3+r.Intn(4))
		sh := api.Shipment{
			InvoiceNumber: api.ID(fmt.Sprintf("%d", 120000+i*7)),
			OrderNumber:   api.ID(fmt.Sprintf("%d", 88000+i)),
			Carrier:       carriers[r.Intn(len(carriers))],
			CarrierCode:   api.ID(fmt.Sprintf("%d", 300+r.Intn(50))),
			ClientCode:    api.ID(fmt.Sprintf("%d", 5000+r.Intn(900))),
			Client:        clients[r.Intn(len(clients))],
			City:          city[0],
			State:         city[1],
			Manifest:      api.ID(fmt.Sprintf("%d", 7000+i/3)),
			TotalValue:    api.Money(float64(r.Intn(900000)+5000) / 100),
			Status:        "ENTREGA_PENDENTE",
			ExpectedAt:    api.Time{Time: expected},
			LoadedAt:      api.Time{Time: loaded},
			InvoicedAt:    api.Time{Time: loaded.AddDate(0, 0, -1)},
			AverageLead:   3 + r.Intn(4),
			DriverName:    drivers[r.Intn(len(drivers))],
		}
		if late := int(now.Sub(expected).Hours() / 24); late > 0 {
			sh.DaysLate = late
		}
		switch i % 4 {
		case 1:
			sh.Status = "ENTREGUE_AGUARDANDO_COMPROVANTE"
		case 2:
			sh.Status = "ENTREGA_FINALIZADA"
			sh.FinalizedAt = api.Time{Time: expected.Add(-2 * time.Hour)}
		case 3:
			if i%8 == 3 {
				sh.Status = "DEVOLUCAO_PARCIAL"
				sh.HasReturn = true
			}
		}
		id := srv.AddShipment(sh)

		for e := 0; e < 1+r.Intn(3); e++ {
			srv.AddTrackingEvent(id, api.TrackingEvent{
				Timestamp:   api.Time{Time: loaded.Add(time.Duration(e*9) * time.Hour)},
				Description: []string{"collected at origin", "in transit", "arrived at delivery hub", "out for delivery"}[e],
				Location:    city[0] + "/" + city[1],
			})
		}
		if sh.Status == "ENTREGA_FINALIZADA" {
			srv.AddAttachment(id, fmt.Sprintf("canhoto_%s.pdf", sh.InvoiceNumber), []byte("%PDF-1.4 sample\n"))
		}
		if sh.HasReturn {
			srv.AddReturn(id, api.ReturnRecord{
				Kind:       "parcial",
				Reason:     "damaged packaging",
				Status:     "registrada",
				ReturnedAt: api.Time{Time: expected},
			})
		}
	}
}

// NewServer returns a mock API with the demo user and sample data.
func NewServer(now time.Time, opts ...mockapi.Option) *mockapi.Server {
	opts = append([]mockapi.Option{mockapi.WithUser(DemoLogin, DemoPassword)}, opts...)
	srv := mockapi.New(opts...)
	Seed(srv, now)
	return srv
}
