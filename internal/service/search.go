package service

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jask/deliverydesk/internal/api"
)

// SearchShipments filters list by query against invoice number, order number,
// client, carrier and city. Substring hits rank first; otherwise a word within
// a small edit distance of the query counts as a fuzzy hit. Order within a
// rank follows list.
func SearchShipments(list []api.Shipment, query string) []api.Shipment {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	type hit struct {
		idx   int
		score int
	}
	var hits []hit
	for i, sh := range list {
		if score, ok := matchShipment(sh, q); ok {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score < hits[b].score })
	out := make([]api.Shipment, 0, len(hits))
	for _, h := range hits {
		out = append(out, list[h.idx])
	}
	return out
}

// matchShipment returns 0 for a substring hit, else the best word distance
// when it is within tolerance.
func matchShipment(sh api.Shipment, q string) (int, bool) {
	fields := []string{string(sh.InvoiceNumber), string(sh.OrderNumber), sh.Client, sh.Carrier, sh.City}
	best := -1
	for _, f := range fields {
		f = strings.ToUpper(f)
		if f == "" {
			continue
		}
		if strings.Contains(f, q) {
			return 0, true
		}
		for _, word := range strings.Fields(f) {
			d := levenshtein.ComputeDistance(word, q)
			if best < 0 || d < best {
				best = d
			}
		}
	}
	if best < 0 || best > tolerance(q) {
		return 0, false
	}
	return best, true
}

func tolerance(q string) int {
	switch n := len([]rune(q)); {
	case n <= 3:
		return 0
	case n <= 6:
		return 1
	default:
		return 2
	}
}
