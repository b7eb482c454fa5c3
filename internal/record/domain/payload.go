package domain

import (
	"encoding/json"
	"fmt"
)

// ReportData is the typed content of a report slot. The concrete type is
// chosen by product line.
type ReportData interface {
	Kind() string
}

type ReportSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FaceReport backs every slot of the face line.
type FaceReport struct {
	Summary  string          `json:"summary,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Sections []ReportSection `json:"sections,omitempty"`
}

func (FaceReport) Kind() string { return "face" }

type GeneratedImage struct {
	ImageBase64 string `json:"image_base64"`
	Prompt      string `json:"prompt,omitempty"`
}

type LoveChapter struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type LoveReport struct {
	UserName          string          `json:"user_name"`
	Chapters          []LoveChapter   `json:"chapters"`
	IdealPartnerImage *GeneratedImage `json:"ideal_partner_image,omitempty"`
	AvoidTypeImage    *GeneratedImage `json:"avoid_type_image,omitempty"`
}

func (LoveReport) Kind() string { return "saju_love" }

// HasIdealPartnerImage reports whether the secondary image generation
// succeeded.
func (r LoveReport) HasIdealPartnerImage() bool {
	return r.IdealPartnerImage != nil && r.IdealPartnerImage.ImageBase64 != ""
}

type CoupleReport struct {
	Score    int             `json:"score"`
	Summary  string          `json:"summary,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Sections []ReportSection `json:"sections,omitempty"`
}

func (CoupleReport) Kind() string { return "couple" }

type MonthlyFortune struct {
	Month   int    `json:"month"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

type NewYearReport struct {
	Summary  string           `json:"summary,omitempty"`
	Chapters []LoveChapter    `json:"chapters,omitempty"`
	Months   []MonthlyFortune `json:"months,omitempty"`
}

func (NewYearReport) Kind() string { return "new_year" }

// OpaqueReport carries payloads of lines without a typed schema.
type OpaqueReport struct {
	Raw json.RawMessage
}

func (OpaqueReport) Kind() string { return "opaque" }

var reportDecoders = map[string]func(json.RawMessage) (ReportData, error){
	"face":      decodeAs[FaceReport],
	"couple":    decodeAs[CoupleReport],
	"saju_love": decodeAs[LoveReport],
	"new_year":  decodeAs[NewYearReport],
}

func decodeAs[T ReportData](raw json.RawMessage) (ReportData, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeReport returns the typed payload of a slot, or nil when the slot
// holds no data yet.
func DecodeReport(line ProductLine, slot ReportSlot) (ReportData, error) {
	if !slot.HasData() {
		return nil, nil
	}
	decode, ok := reportDecoders[line.Name]
	if !ok {
		return OpaqueReport{Raw: cloneRaw(slot.Data)}, nil
	}
	data, err := decode(slot.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s report: %w", line.Name, err)
	}
	return data, nil
}

// EncodeReport serialises a typed payload for storage in a slot.
func EncodeReport(data ReportData) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	if opaque, ok := data.(OpaqueReport); ok {
		return cloneRaw(opaque.Raw), nil
	}
	return json.Marshal(data)
}
