package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/qcompat/internal/question"
)

// Question returns a minimal recorded question from producer. The body is
// not a valid question for any SDK generation; it is for tests that only
// move questions around.
func Question(producer, uuid string) question.Recorded {
	return question.Recorded{
		ProducerVersion: producer,
		Question: question.Payload{
			Data:       `{"input_values":{}}`,
			Attributes: map[string]string{question.UUIDAttribute: uuid},
		},
	}
}

// WriteQuestions creates a record store with one question per producer, in
// order, and returns its path.
func WriteQuestions(t testing.TB, producers ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recorded_questions.jsonl")
	for i, p := range producers {
		if err := question.Append(path, Question(p, UUID(i+1))); err != nil {
			t.Fatalf("write questions: %v", err)
		}
	}
	return path
}

// UUID returns a fixed, valid UUID string for n.
func UUID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}
