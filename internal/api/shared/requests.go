package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"gopkg.in/yaml.v3"
)

// MaxBodyBytes bounds request bodies decoded by DecodeBody
const MaxBodyBytes = 1 << 20

// ErrUnsupportedMediaType is returned by DecodeBody for content types it
// cannot decode
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// DecodeJSON decodes the request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

// DecodeYAML decodes a YAML request body into the given struct.
func DecodeYAML(r *http.Request, v interface{}) error {
	if err := yaml.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty YAML body: %w", err)
		}
		return err
	}
	return nil
}

// DecodeBody decodes the request body according to its Content-Type. JSON is
// assumed when the header is missing; YAML is accepted under its common
// media types. Bodies larger than MaxBodyBytes are rejected.
func DecodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return DecodeJSON(r, v)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, contentType)
	}

	switch mediaType {
	case "application/json":
		return DecodeJSON(r, v)
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return DecodeYAML(r, v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
}
