package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 64 << 10

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", core.ErrInvalidRequest, err)
	}
	return nil
}
