package sdk

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/pubsub"
)

// classicSDK covers versions before 2.0.0.
type classicSDK struct {
	version string
}

func (c classicSDK) Version() string        { return c.version }
func (c classicSDK) Generation() Generation { return GenerationClassic }

func (c classicSDK) NewService(tr pubsub.Transport, opts ...Option) (Service, error) {
	return newService(tr, classicProtocol{}, opts)
}

// DecodeManifestMap implements ManifestMapDecoder.
func (c classicSDK) DecodeManifestMap(obj map[string]any) (*manifest.Manifest, error) {
	return manifest.FromMap(obj)
}

// classicProtocol embeds manifests as JSON text and carries no sender
// metadata.
type classicProtocol struct{}

func (classicProtocol) newID(o options) string {
	return servicesPrefix + o.ids.Generate()
}

func (classicProtocol) encodeQuestion(q Question) (map[string]any, error) {
	body := map[string]any{
		"input_values":   q.InputValues,
		"input_manifest": nil,
	}
	if q.InputManifest != nil {
		text, err := q.InputManifest.Serialise()
		if err != nil {
			return nil, err
		}
		body["input_manifest"] = string(text)
	}
	return body, nil
}

func (classicProtocol) questionAttributes(questionUUID string) map[string]string {
	return map[string]string{
		attrQuestionUUID: questionUUID,
		attrForwardLogs:  "1",
	}
}

func (classicProtocol) checkAttributes(map[string]string) error { return nil }

func (classicProtocol) decodeQuestion(body []byte) (any, *manifest.Manifest, error) {
	var q struct {
		InputValues   any     `json:"input_values"`
		InputManifest *string `json:"input_manifest"`
	}
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedQuestion, err)
	}
	if q.InputManifest == nil {
		return q.InputValues, nil, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(*q.InputManifest), &obj); err != nil {
		return nil, nil, fmt.Errorf("%w: input_manifest: %v", ErrMalformedQuestion, err)
	}
	m, err := manifest.FromMap(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: input_manifest: %v", ErrMalformedQuestion, err)
	}
	return q.InputValues, m, nil
}

func (classicProtocol) encodeAnswer(kind string, fields map[string]any) (map[string]any, error) {
	out := map[string]any{"type": kind}
	for k, v := range fields {
		if m, ok := v.(*manifest.Manifest); ok {
			text, err := m.Serialise()
			if err != nil {
				return nil, err
			}
			v = string(text)
		}
		out[k] = v
	}
	return out, nil
}

func (classicProtocol) answerAttributes(questionUUID string) map[string]string {
	return map[string]string{attrQuestionUUID: questionUUID}
}
