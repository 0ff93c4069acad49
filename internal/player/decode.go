package player

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/sdk"
)

// checkInputManifest decodes the input_manifest field of a question body
// with the consumer's own conventions. A question without one passes.
func checkInputManifest(s sdk.SDK, data string) error {
	var body struct {
		InputManifest json.RawMessage `json:"input_manifest"`
	}
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return fmt.Errorf("question data: %w", err)
	}
	_, err := decodeManifest(s, body.InputManifest)
	return err
}

// decodeManifest tries the string convention first and falls back to the
// map convention. raw may be either JSON text embedded as a string or an
// object.
func decodeManifest(s sdk.SDK, raw json.RawMessage) (*manifest.Manifest, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifest, err)
		}
	}

	var errs []error
	if d, ok := s.(sdk.ManifestStringDecoder); ok {
		m, err := d.DecodeManifestString(text)
		if err == nil {
			return m, nil
		}
		errs = append(errs, fmt.Errorf("string convention: %w", err))
	}
	if d, ok := s.(sdk.ManifestMapDecoder); ok {
		var obj map[string]any
		err := json.Unmarshal([]byte(text), &obj)
		if err == nil {
			var m *manifest.Manifest
			if m, err = d.DecodeManifestMap(obj); err == nil {
				return m, nil
			}
		}
		errs = append(errs, fmt.Errorf("map convention: %w", err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: SDK %s has no manifest decoder", ErrManifest, s.Version())
	}
	return nil, fmt.Errorf("%w: %w", ErrManifest, errors.Join(errs...))
}
