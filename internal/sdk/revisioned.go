package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/pubsub"
	"github.com/roach88/qcompat/internal/version"
)

const (
	attrSenderType    = "sender_type"
	attrVersion       = "version"
	attrMessageNumber = "message_number"

	senderParent = "PARENT"
	senderChild  = "CHILD"
)

// revisionedSDK covers 2.x.
type revisionedSDK struct {
	version string
}

func (r revisionedSDK) Version() string        { return r.version }
func (r revisionedSDK) Generation() Generation { return GenerationRevisioned }

func (r revisionedSDK) NewService(tr pubsub.Transport, opts ...Option) (Service, error) {
	return newService(tr, revisionedProtocol{version: r.version}, opts)
}

// DecodeManifestString implements ManifestStringDecoder.
func (r revisionedSDK) DecodeManifestString(text string) (*manifest.Manifest, error) {
	return manifest.Deserialise(text)
}

// revisionedProtocol names services by namespace, name and revision, embeds
// manifests as objects and stamps every message with its sender.
type revisionedProtocol struct {
	version string
}

func (p revisionedProtocol) newID(o options) string {
	rev := o.revision
	if rev == "" {
		rev = o.ids.Generate()
		if len(rev) > 8 {
			rev = rev[:8]
		}
	}
	return fmt.Sprintf("octue/%s:%s", o.name, rev)
}

func (p revisionedProtocol) encodeQuestion(q Question) (map[string]any, error) {
	body := map[string]any{
		"kind":           "question",
		"input_values":   q.InputValues,
		"input_manifest": nil,
	}
	if q.InputManifest != nil {
		obj, err := q.InputManifest.ToMap()
		if err != nil {
			return nil, err
		}
		body["input_manifest"] = obj
	}
	return body, nil
}

func (p revisionedProtocol) questionAttributes(questionUUID string) map[string]string {
	return map[string]string{
		attrQuestionUUID:  questionUUID,
		attrForwardLogs:   "1",
		attrSenderType:    senderParent,
		attrVersion:       p.version,
		attrMessageNumber: "0",
	}
}

func (p revisionedProtocol) checkAttributes(attrs map[string]string) error {
	if attrs[attrSenderType] != senderParent {
		return fmt.Errorf("%w: %s=%s", ErrMissingAttribute, attrSenderType, senderParent)
	}
	v, ok := attrs[attrVersion]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingAttribute, attrVersion)
	}
	if !version.IsValid(v) {
		return fmt.Errorf("%w: %s %q is not a version", ErrMalformedQuestion, attrVersion, v)
	}
	return nil
}

func (p revisionedProtocol) decodeQuestion(body []byte) (any, *manifest.Manifest, error) {
	var q struct {
		Kind          string          `json:"kind"`
		InputValues   any             `json:"input_values"`
		InputManifest json.RawMessage `json:"input_manifest"`
	}
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedQuestion, err)
	}
	if q.Kind != "question" {
		return nil, nil, fmt.Errorf("%w: kind %q", ErrMalformedQuestion, q.Kind)
	}

	raw := bytes.TrimSpace(q.InputManifest)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return q.InputValues, nil, nil
	}
	if raw[0] != '{' {
		return nil, nil, fmt.Errorf("%w: input_manifest must be an object", ErrMalformedQuestion)
	}
	m, err := manifest.Deserialise(string(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: input_manifest: %v", ErrMalformedQuestion, err)
	}
	return q.InputValues, m, nil
}

func (p revisionedProtocol) encodeAnswer(kind string, fields map[string]any) (map[string]any, error) {
	out := map[string]any{"kind": kind}
	for k, v := range fields {
		if m, ok := v.(*manifest.Manifest); ok {
			obj, err := m.ToMap()
			if err != nil {
				return nil, err
			}
			v = obj
		}
		out[k] = v
	}
	return out, nil
}

func (p revisionedProtocol) answerAttributes(questionUUID string) map[string]string {
	return map[string]string{
		attrQuestionUUID: questionUUID,
		attrSenderType:   senderChild,
		attrVersion:      p.version,
	}
}
