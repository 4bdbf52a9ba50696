// Package export renders registrations for spreadsheet tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"eventDesk/internal/model"
)

// bom makes spreadsheet apps detect UTF-8 for non-ASCII names.
const bom = "\ufeff"

var header = []string{
	"Submitted", "Name", "Email", "Phone", "Birthdate",
	"Event", "Event date", "Dietary requirements", "Notes", "Status",
}

var statusLabels = map[model.Status]string{
	model.StatusPending:   "Pending",
	model.StatusProcessed: "Processed",
}

// FileName returns the download name for an export made at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("registrations_%s.csv", now.Format(model.DateLayout))
}

// WriteCSV writes regs as CSV with a leading BOM. Times are rendered in loc.
func WriteCSV(w io.Writer, regs []model.Registration, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := io.WriteString(w, bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range regs {
		if err := cw.Write(row(r, loc)); err != nil {
			return fmt.Errorf("write registration %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r model.Registration, loc *time.Location) []string {
	submitted := ""
	if !r.SubmittedAt.IsZero() {
		submitted = r.SubmittedAt.In(loc).Format("2006-01-02 15:04")
	}
	label, ok := statusLabels[r.Status]
	if !ok {
		label = string(r.Status)
	}
	return []string{
		submitted,
		r.Name,
		deref(r.Email),
		deref(r.Phone),
		deref(r.Birthdate),
		r.EventName,
		r.RegistrationDate,
		deref(r.DietaryRequirements),
		deref(r.Notes),
		label,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
