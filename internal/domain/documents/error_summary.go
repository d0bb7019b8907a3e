package documents

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ErrorSummary is the persisted record of the last failure of a document.
type ErrorSummary struct {
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
	Attempts   int       `json:"attempts,omitempty"`
	Transient  bool      `json:"transient"`
}

func (s ErrorSummary) JSON() datatypes.JSON {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// DecodeErrorSummary returns nil for an empty column.
func DecodeErrorSummary(raw datatypes.JSON) *ErrorSummary {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var out ErrorSummary
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}
