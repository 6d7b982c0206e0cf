package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// jsonRow is the JSON shape of a Row.
type jsonRow struct {
	Date           string `json:"date"`
	DayOfWeek      string `json:"day_of_week"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	RoundedStart   string `json:"rounded_start_time"`
	RoundedEnd     string `json:"rounded_end_time"`
	TimeDifference string `json:"time_difference"`
}

// CheckFormat returns an error unless Write supports format.
func CheckFormat(format string) error {
	switch format {
	case "csv", "", "json":
		return nil
	default:
		return fmt.Errorf("unsupported report format: %s (use csv or json)", format)
	}
}

// Write renders rows to w in the given format.
// Supported formats: "csv" (default, header row first) and "json".
func Write(w io.Writer, rows []Row, format string) error {
	switch format {
	case "csv", "":
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(r.Record()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case "json":
		out := make([]jsonRow, 0, len(rows))
		for _, r := range rows {
			out = append(out, jsonRow{
				Date:           r.Date,
				DayOfWeek:      r.Weekday,
				StartTime:      r.Start,
				EndTime:        r.End,
				RoundedStart:   r.RoundedStart,
				RoundedEnd:     r.RoundedEnd,
				TimeDifference: FormatDuration(r.Difference),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	default:
		return CheckFormat(format)
	}
}
