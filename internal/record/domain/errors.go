package domain

import "errors"

var (
	ErrRecordNotFound         = errors.New("record_not_found")
	ErrRecordExists           = errors.New("record_exists")
	ErrInvalidRecordID        = errors.New("invalid_record_id")
	ErrUnknownProductLine     = errors.New("unknown_product_line")
	ErrUnknownSlot            = errors.New("unknown_slot")
	ErrInputLocked            = errors.New("input_locked")
	ErrUnsupportedSchema      = errors.New("unsupported_schema_version")
	ErrStorageUnavailable     = errors.New("storage_unavailable")
	ErrProductLineMismatch    = errors.New("product_line_mismatch")
	ErrInvalidPaymentInfo     = errors.New("invalid_payment_info")
	ErrAnalysisAlreadyRunning = errors.New("analysis_already_running")
)
