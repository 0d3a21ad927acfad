package loan

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/warp/loan-engine/generic"
)

// CSVHeader is the first row of a schedule export.
var CSVHeader = []string{"date", "payment", "interest", "principal", "extra", "balance", "annual_rate", "event"}

// WriteScheduleCSV writes one row per entry followed by a TOTAL row.
func WriteScheduleCSV(w io.Writer, s Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range s {
		row := []string{
			e.Date.String(),
			e.Payment.StringFixed(2),
			e.Interest.StringFixed(2),
			e.Principal.StringFixed(2),
			e.Extra.StringFixed(2),
			e.Balance.StringFixed(2),
			e.AnnualRate.StringFixed(2),
			strings.Join(e.Events, ","),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	total := []string{
		"TOTAL",
		s.TotalPaid().StringFixed(2),
		s.TotalInterest().StringFixed(2),
		s.TotalPrincipal().StringFixed(2),
		"", "", "", "",
	}
	if err := cw.Write(total); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ExportScheduleCSV writes the committed schedule of a loan and returns a
// suggested file name.
func (s *Service) ExportScheduleCSV(ctx context.Context, id generic.StreamID, w io.Writer) (string, error) {
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("loan-%s-v%d.csv", shortID(id), proj.Version)
	return name, WriteScheduleCSV(w, proj.Value.Schedule)
}

func shortID(id generic.StreamID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
