package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/karibu-labs/darasa/internal/schema"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

// decodeJSON reads a request body into dst and runs its validation tags.
// Unknown fields are ignored; malformed JSON and failed validation both
// surface as 400 errors.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return httperr.NewBadRequest("request body is required")
		}
		return httperr.NewBadRequest("request body is not valid JSON")
	}
	return schema.Validate(dst)
}
