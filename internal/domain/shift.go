package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RestSentinel marks a day with no recognizable time range. It is stored in
// place of an empty slot so that "day off" is never ambiguous with "not yet
// processed".
const RestSentinel = "REST"

// Record provenance values.
const (
	SourceExtracted = "extracted"
	SourceEdited    = "edited"
	SourceManual    = "manual"
)

// DateLayout is the wire and storage format for shift dates.
const DateLayout = "2006-01-02"

// ShiftRecord is one reviewed day inside a job's draft. Date is always a
// concrete calendar date by the time the record enters the draft.
type ShiftRecord struct {
	Date      string `json:"date"`
	Slot1     string `json:"slot_1"`
	Slot2     string `json:"slot_2,omitempty"`
	Note      string `json:"note,omitempty"`
	Source    string `json:"source"`
	Committed bool   `json:"committed,omitempty"`
}

// IsRest reports whether the record represents a day off.
func (r ShiftRecord) IsRest() bool {
	return r.Slot1 == RestSentinel
}

// Draft is the review buffer payload: at most one record per date.
type Draft map[string]ShiftRecord

// Dates returns the draft's dates in ascending order.
func (d Draft) Dates() []string {
	dates := make([]string, 0, len(d))
	for date := range d {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// Value implements driver.Valuer so a Draft can be stored as JSONB.
func (d Draft) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB draft columns.
func (d *Draft) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Draft", src)
	}
	return json.Unmarshal(b, d)
}

// Warnings is the list of non-fatal per-record problems accumulated while a
// job was processed.
type Warnings []string

// Value implements driver.Valuer so Warnings can be stored as JSONB.
func (w Warnings) Value() (driver.Value, error) {
	if w == nil {
		return nil, nil
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner for JSONB warning columns.
func (w *Warnings) Scan(src interface{}) error {
	if src == nil {
		*w = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Warnings", src)
	}
	return json.Unmarshal(b, w)
}

// CommittedShift is the external tabular store representation, keyed by
// (tenant, date).
type CommittedShift struct {
	TenantID    string    `db:"tenant_id"`
	ShiftDate   time.Time `db:"shift_date"`
	Slot1       string    `db:"slot_1"`
	Slot2       string    `db:"slot_2"`
	Note        string    `db:"note"`
	ValidatedAt time.Time `db:"validated_at"`
}
