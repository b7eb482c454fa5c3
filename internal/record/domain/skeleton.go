package domain

import (
	"strings"
	"time"
)

// Skeleton returns a reports map holding every slot of line, unpaid and
// without data.
func Skeleton(line ProductLine) map[SlotKey]ReportSlot {
	reports := make(map[SlotKey]ReportSlot, len(line.Slots))
	for _, s := range line.Slots {
		reports[s] = ReportSlot{}
	}
	return reports
}

// NewRecord builds a fresh record for line with the full skeleton.
func NewRecord(line ProductLine, id string, input Input, now time.Time) (*AnalysisRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidRecordID
	}
	now = now.UTC()
	return &AnalysisRecord{
		SchemaVersion: CurrentSchemaVersion,
		ID:            id,
		ProductLine:   line.Name,
		CreatedAt:     now,
		UpdatedAt:     now,
		Input:         input,
		Reports:       Skeleton(line),
	}, nil
}

// Normalize fills missing slots, folds JSON nulls and re-derives the
// top-level paid flag. It never clears a paid slot.
func Normalize(rec *AnalysisRecord, line ProductLine) {
	if rec.Reports == nil {
		rec.Reports = Skeleton(line)
	}
	for _, s := range line.Slots {
		if _, ok := rec.Reports[s]; !ok {
			rec.Reports[s] = ReportSlot{}
		}
	}
	for k, s := range rec.Reports {
		if !s.HasData() {
			s.Data = nil
			rec.Reports[k] = s
		}
	}
	if !hasJSON(rec.RawExternalResult) {
		rec.RawExternalResult = nil
	}
	if rec.ProductLine == "" {
		rec.ProductLine = line.Name
	}
	rec.SchemaVersion = CurrentSchemaVersion
	rec.Paid = rec.Reports[line.Primary].Paid
}
