// Package question defines recorded questions and the append-only JSON lines
// store they are kept in.
//
// Each line of the store is one question captured from a producer SDK version
// at the moment it would have been published:
//
//	{"producer_version": "0.41.1", "question": {"data": "...", "attributes": {"question_uuid": "..."}}}
//
// Insertion order is recording order. Readers ignore blank lines.
package question

import (
	"errors"
	"fmt"
)

// UUIDAttribute names the attribute carrying the request identifier.
const UUIDAttribute = "question_uuid"

// ErrMissingUUID is returned when a question has no request identifier.
var ErrMissingUUID = errors.New("question has no " + UUIDAttribute + " attribute")

// Payload is a question as passed to the transport's publish call: the
// serialised body and its attributes, before any wire encoding.
type Payload struct {
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

// Recorded is one line of the record store.
type Recorded struct {
	ProducerVersion string  `json:"producer_version"`
	Question        Payload `json:"question"`
}

// UUID returns the question's request identifier.
func (r Recorded) UUID() string {
	return r.Question.Attributes[UUIDAttribute]
}

// Validate checks the fields replay depends on.
func (r Recorded) Validate() error {
	if r.ProducerVersion == "" {
		return fmt.Errorf("question has no producer version")
	}
	if r.UUID() == "" {
		return ErrMissingUUID
	}
	return nil
}
