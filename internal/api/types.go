package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ID is a resource identifier. The API sends integers for database rows but
// strings are accepted too, so everything is kept as text on this side.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Time parses the handful of layouts the API emits (ISO without zone from
// isoformat(), space separated, and the dd/mm/yyyy form used by to_dict).
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("time: unrecognised format %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

// Money accepts a JSON number or a numeric string.
type Money float64

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*m = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = Money(f)
	return nil
}

// Shipment is one delivery record as served by GET /entregas/.
type Shipment struct {
	ID            ID     `json:"id"`
	InvoiceNumber ID     `json:"NUMNOTA"`
	OrderNumber   ID     `json:"NUMPED"`
	Carrier       string `json:"TRANSPORTADORA"`
	CarrierCode   ID     `json:"CODFORNECFRETE"`
	ClientCode    ID     `json:"CODCLI"`
	Client        string `json:"CLIENTE"`
	City          string `json:"MUNICIPIO"`
	State         string `json:"UF"`
	Manifest      ID     `json:"ROMANEIO"`
	TotalValue    Money  `json:"VLTOTAL"`
	Status        string `json:"STATUS"`
	ExpectedAt    Time   `json:"PREVISAOENTREGA"`
	ScheduledAt   Time   `json:"AGENDAMENTO"`
	LoadedAt      Time   `json:"DTCARREGAMENTO"`
	InvoicedAt    Time   `json:"DTFAT"`
	FinalizedAt   Time   `json:"DATAFINALIZACAO"`
	DaysLate      int    `json:"DIASATRASO"`
	AverageLead   int    `json:"PRAZOMEDIO"`
	HasReturn     bool   `json:"DEVOLUCAO"`
	DriverName    string `json:"motorista_nome"`
}

// Finalized reports whether the shipment already carries a finalization date.
func (s Shipment) Finalized() bool { return !s.FinalizedAt.IsZero() }

// Attachment is a proof-of-delivery document linked to a shipment.
type Attachment struct {
	ID       ID     `json:"id"`
	FileName string `json:"nome_arquivo"`
	Path     string `json:"caminho_arquivo"`
	Kind     string `json:"tipo"`
	SentAt   Time   `json:"data_envio"`
}

// Name returns the display name, falling back to the stored path's base name.
func (a Attachment) Name() string {
	if a.FileName != "" {
		return a.FileName
	}
	if a.Path != "" {
		return filepath.Base(a.Path)
	}
	return "attachment " + string(a.ID)
}

// ReturnRecord is a logged product return for a shipment.
type ReturnRecord struct {
	ID         ID     `json:"id"`
	Kind       string `json:"tipo_devolucao"`
	Reason     string `json:"motivo"`
	Notes      string `json:"observacoes"`
	Status     string `json:"status"`
	ReturnedAt Time   `json:"data_devolucao"`
}

// TrackingEvent is one carrier status update.
type TrackingEvent struct {
	ID          ID     `json:"id"`
	Timestamp   Time   `json:"timestamp"`
	Description string `json:"status_descricao"`
	Location    string `json:"localizacao"`
}

// RefreshResult is the reply to a carrier re-poll.
type RefreshResult struct {
	Mensagem string `json:"mensagem"`
	Message  string `json:"message"`
}

// Text returns whichever message field the server filled in.
func (r RefreshResult) Text() string {
	if r.Mensagem != "" {
		return r.Mensagem
	}
	return r.Message
}

// UploadResult is the reply to a proof-of-delivery upload.
type UploadResult struct {
	Message    string     `json:"message"`
	Attachment Attachment `json:"comprovante"`
}

// ShipmentFilter maps onto the query parameters of GET /entregas/.
type ShipmentFilter struct {
	Status   string
	DriverID string
	From     time.Time
	To       time.Time
}
