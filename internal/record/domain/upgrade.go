package domain

import (
	"encoding/json"
	"fmt"
)

type rawRecord map[string]json.RawMessage

type upgradeFunc func(raw rawRecord, line ProductLine) (rawRecord, error)

// upgrades maps a stored schema version to the step that lifts it to the
// next version. Records written before versioning carry no schemaVersion
// and enter at 0.
var upgrades = map[int]upgradeFunc{
	0: upgradeLegacyPayload,
	1: upgradeSlotPurchaseTime,
}

// Decode reads a stored record of any known version and returns it in the
// current shape. upgraded is true when the stored bytes were older than
// CurrentSchemaVersion and should be rewritten.
func Decode(payload []byte, line ProductLine) (rec *AnalysisRecord, upgraded bool, err error) {
	var raw rawRecord
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, false, fmt.Errorf("decode record: %w", err)
	}

	version := 0
	if v, ok := raw["schemaVersion"]; ok && hasJSON(v) {
		if err := json.Unmarshal(v, &version); err != nil {
			return nil, false, fmt.Errorf("decode schema version: %w", err)
		}
	}
	if version > CurrentSchemaVersion {
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedSchema, version)
	}

	for version < CurrentSchemaVersion {
		step, ok := upgrades[version]
		if !ok {
			return nil, false, fmt.Errorf("%w: no upgrade from %d", ErrUnsupportedSchema, version)
		}
		raw, err = step(raw, line)
		if err != nil {
			return nil, false, fmt.Errorf("upgrade from %d: %w", version, err)
		}
		version++
		upgraded = true
	}

	raw["schemaVersion"] = json.RawMessage(fmt.Sprintf("%d", CurrentSchemaVersion))
	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, false, err
	}
	var out AnalysisRecord
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, false, fmt.Errorf("decode record: %w", err)
	}
	Normalize(&out, line)
	return &out, upgraded, nil
}

// Encode always writes the current shape; legacy fields are never emitted.
func Encode(rec *AnalysisRecord) ([]byte, error) {
	rec.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(rec)
}

// upgradeLegacyPayload wraps the pre-slot {summary, detail, paid} shape
// into the primary slot. Unversioned records that already carry a reports
// map pass through untouched.
func upgradeLegacyPayload(raw rawRecord, line ProductLine) (rawRecord, error) {
	if _, ok := raw["reports"]; ok {
		return raw, nil
	}

	data := map[string]json.RawMessage{}
	for _, key := range []string{"summary", "detail"} {
		if v, ok := raw[key]; ok {
			data[key] = v
			delete(raw, key)
		}
	}
	var payload json.RawMessage
	if len(data) > 0 {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		payload = b
	} else if v, ok := raw["report"]; ok && hasJSON(v) {
		payload = v
	}
	delete(raw, "report")

	paid := false
	if v, ok := raw["paid"]; ok && hasJSON(v) {
		if err := json.Unmarshal(v, &paid); err != nil {
			return nil, fmt.Errorf("legacy paid flag: %w", err)
		}
	}

	reports := map[SlotKey]ReportSlot{}
	for _, s := range line.Slots {
		reports[s] = ReportSlot{}
	}
	reports[line.Primary] = ReportSlot{Paid: paid, Data: payload}

	b, err := json.Marshal(reports)
	if err != nil {
		return nil, err
	}
	raw["reports"] = b
	return raw, nil
}

// upgradeSlotPurchaseTime moves the record-level paidAt timestamp into the
// primary slot.
func upgradeSlotPurchaseTime(raw rawRecord, line ProductLine) (rawRecord, error) {
	paidAt, ok := raw["paidAt"]
	delete(raw, "paidAt")
	if !ok || !hasJSON(paidAt) {
		return raw, nil
	}

	var reports map[SlotKey]ReportSlot
	if err := json.Unmarshal(raw["reports"], &reports); err != nil {
		return nil, fmt.Errorf("reports: %w", err)
	}
	primary, exists := reports[line.Primary]
	if !exists || !primary.Paid || primary.PurchasedAt != nil {
		return raw, nil
	}
	if err := json.Unmarshal(paidAt, &primary.PurchasedAt); err != nil {
		return nil, fmt.Errorf("paidAt: %w", err)
	}
	reports[line.Primary] = primary

	b, err := json.Marshal(reports)
	if err != nil {
		return nil, err
	}
	raw["reports"] = b
	return raw, nil
}
