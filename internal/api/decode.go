package api

import (
	"encoding/json"
	"errors"
	"io"
)

// decodeOptional decodes JSON from body, treating an empty body as no input.
func decodeOptional(body io.Reader, dst any) error {
	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
