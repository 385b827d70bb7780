package postgres

import (
	"encoding/json"

	"github.com/kairosodds/pulse/internal/pkg/models"
)

// marshalExtraData serializes an ExtraData bag to JSON for storage in a
// jsonb column; a nil map marshals to the JSON literal null, which the
// jsonb column accepts directly.
func marshalExtraData(e models.ExtraData) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	return json.Marshal(e)
}

// unmarshalExtraData is marshalExtraData's inverse, used when reading
// the comparison view back out for publication.
func unmarshalExtraData(raw []byte) (models.ExtraData, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var e models.ExtraData
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return e, nil
}
