package normalize

import (
	"bytes"
	"encoding/json"

	"github.com/medrex/clinic-audit/pkg/types"
)

type envelope struct {
	Data *[]json.RawMessage `json:"data"`
}

// UnwrapList accepts either a JSON array or an object whose "data" field is
// an array, and returns the elements undecoded.
func UnwrapList(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "empty payload", nil)
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "invalid JSON array",
				map[string]interface{}{"error": err.Error()})
		}
		return items, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "invalid JSON object",
				map[string]interface{}{"error": err.Error()})
		}
		if env.Data == nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, `object payload has no "data" array`, nil)
		}
		return *env.Data, nil
	}

	return nil, types.NewValidationError(types.ErrCodeInvalidInput, "payload must be an array or an object with data", nil)
}
