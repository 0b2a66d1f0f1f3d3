package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxRequestBody caps request bodies at 1 MiB. Job payloads are small
// JSON documents; anything larger is a client error, not a job.
const maxRequestBody = 1 << 20

// Global validator instance for reuse
var validate = validator.New()

// ErrBodyTooLarge is returned by DecodeJSON when the request body
// exceeds the size cap.
var ErrBodyTooLarge = errors.New("request body too large")

// ErrTrailingBody is returned by DecodeJSON when content follows the
// first JSON document in the request body.
var ErrTrailingBody = errors.New("request body must contain a single JSON document")

// DecodeJSON decodes the request body into v. The body is capped at
// 1 MiB and must contain exactly one JSON document.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrTrailingBody
	}
	return nil
}

// ValidateRequest validates the given struct. Types implementing their
// own Validate method are checked with it; everything else goes through
// the struct tag validator.
func ValidateRequest(v interface{}) error {
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}
	return validate.Struct(v)
}
