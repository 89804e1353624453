package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"sentinela-gateway/middleware/guard/domain"
)

const maxBodyBytes = 64 << 10

// DecodeJSON lê um corpo JSON limitado a 64KB; falhas embrulham domain.ErrValidation.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", domain.ErrValidation)
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
