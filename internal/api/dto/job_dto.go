package dto

import "github.com/rosterly/rosterly-be/internal/domain"

// CreateJobForm is the non-file part of the multipart upload. The roster
// image itself arrives as the "image" file field.
type CreateJobForm struct {
	SubjectLabel string `form:"subject_label" binding:"required"`
	AnchorDate   string `form:"anchor_date"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID           string      `json:"job_id"`
	SubjectLabel    string      `json:"subject_label"`
	Status          string      `json:"status"`
	AnchorWeekStart string      `json:"anchor_week_start"`
	FailureReason   string      `json:"failure_reason,omitempty"`
	Warnings        []string    `json:"warnings,omitempty"`
	Records         []RecordDTO `json:"records,omitempty"`
	CreatedAt       string      `json:"created_at"`
	UpdatedAt       string      `json:"updated_at"`
	CommittedAt     string      `json:"committed_at,omitempty"`
}

type RecordDTO struct {
	Date      string `json:"date"`
	Slot1     string `json:"slot_1"`
	Slot2     string `json:"slot_2,omitempty"`
	Note      string `json:"note,omitempty"`
	Source    string `json:"source"`
	Committed bool   `json:"committed,omitempty"`
}

// EditRecordRequest carries a correction for one draft record. Omitted fields
// are left unchanged.
type EditRecordRequest struct {
	Slot1 *string `json:"slot_1"`
	Slot2 *string `json:"slot_2"`
	Note  *string `json:"note"`
}

type AddRecordRequest struct {
	Date  string `json:"date" binding:"required"`
	Slot1 string `json:"slot_1"`
	Slot2 string `json:"slot_2"`
	Note  string `json:"note"`
}

type CommitResponse struct {
	JobID          string   `json:"job_id"`
	Status         string   `json:"status"`
	CommittedCount int      `json:"committed_count"`
	FailedDates    []string `json:"failed_dates,omitempty"`
}

type ShiftDTO struct {
	Date        string `json:"date"`
	Slot1       string `json:"slot_1"`
	Slot2       string `json:"slot_2,omitempty"`
	Note        string `json:"note,omitempty"`
	ValidatedAt string `json:"validated_at"`
}

type ListShiftsResponse struct {
	Shifts []ShiftDTO `json:"shifts"`
}

type TrafficResponse struct {
	Date                 string `json:"date"`
	ShiftStart           string `json:"shift_start"`
	Severity             string `json:"severity"`
	Delayed              bool   `json:"delayed"`
	RecommendedDeparture string `json:"recommended_departure"`
	TravelMinutes        int    `json:"travel_minutes"`
	MarginMinutes        int    `json:"margin_minutes"`
}

// RecordsFromDraft flattens a draft into date-ordered DTOs.
func RecordsFromDraft(draft domain.Draft) []RecordDTO {
	if len(draft) == 0 {
		return nil
	}
	records := make([]RecordDTO, 0, len(draft))
	for _, date := range draft.Dates() {
		rec := draft[date]
		records = append(records, RecordDTO{
			Date:      rec.Date,
			Slot1:     rec.Slot1,
			Slot2:     rec.Slot2,
			Note:      rec.Note,
			Source:    rec.Source,
			Committed: rec.Committed,
		})
	}
	return records
}
