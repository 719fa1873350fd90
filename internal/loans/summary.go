package loans

import (
	"sort"

	"voice-lending-go/internal/types"
)

// Summary aggregates approval rates across the loan history.
type Summary struct {
	Total        int                `json:"total"`
	Approved     int                `json:"approved"`
	ApprovalRate float64            `json:"approval_rate"`
	ByCIBILBand  map[string]float64 `json:"approval_rate_by_cibil_band"`
	BandCounts   map[string]int     `json:"count_by_cibil_band"`
}

func cibilBand(score int) string {
	switch {
	case score < 550:
		return "300-549"
	case score < 650:
		return "550-649"
	case score < 750:
		return "650-749"
	default:
		return "750-900"
	}
}

func Summarize(records []types.LoanRecord) Summary {
	total := map[string]int{}
	approved := map[string]int{}
	s := Summary{Total: len(records), ByCIBILBand: map[string]float64{}, BandCounts: total}
	for _, r := range records {
		b := cibilBand(r.CIBILScore)
		total[b]++
		if r.Approved() {
			approved[b]++
			s.Approved++
		}
	}
	for k, n := range total {
		if n > 0 {
			s.ByCIBILBand[k] = float64(approved[k]) / float64(n)
		}
	}
	if s.Total > 0 {
		s.ApprovalRate = float64(s.Approved) / float64(s.Total)
	}
	return s
}

// Bands lists the bands present, lowest first.
func (s Summary) Bands() []string {
	out := make([]string, 0, len(s.BandCounts))
	for k := range s.BandCounts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
