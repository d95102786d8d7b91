package audit

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/kilianp07/jobroute/core/events"
)

// WriteCSV writes recs as time,event,key,data rows with a header line.
func WriteCSV(w io.Writer, recs []events.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "event", "key", "data"}); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{r.Time.Format(time.RFC3339Nano), r.Event, r.Key, string(r.Data)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
