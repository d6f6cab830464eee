package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jask/deliverydesk/internal/api"
)

func formatMoney(symbol string, v api.Money) string {
	s := fmt.Sprintf("%.2f", float64(v))
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	if symbol == "" {
		return out
	}
	return symbol + " " + out
}

func formatTime(t api.Time, loc *time.Location, layout string) string {
	if t.IsZero() {
		return "-"
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(layout)
}

func statusLabel(status string) string {
	switch status {
	case "ENTREGA_PENDENTE":
		return "pending"
	case "ENTREGUE_AGUARDANDO_COMPROVANTE":
		return "delivered, awaiting proof"
	case "ENTREGA_FINALIZADA":
		return "finalized"
	case "DEVOLUCAO_PARCIAL":
		return "partial return"
	case "DEVOLUCAO_TOTAL":
		return "full return"
	case "":
		return "all"
	default:
		return strings.ToLower(status)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
