package question

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/qcompat/internal/version"
)

// ErrNoQuestions is returned by ReadAll when the store holds no questions.
var ErrNoQuestions = errors.New("no questions found")

// maxLineSize bounds a single record; question bodies carry whole manifests.
const maxLineSize = 16 * 1024 * 1024

// LineError reports a malformed line in the record store.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Marshal encodes a question as a single store line, without the newline.
// HTML escaping is disabled so bodies are stored exactly as published.
func Marshal(q Recorded) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(q); err != nil {
		return nil, fmt.Errorf("marshal question: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal decodes a single store line. Stores written by earlier tooling
// name the producer "parent_sdk_version"; that key is read when
// "producer_version" is absent.
func Unmarshal(line []byte) (Recorded, error) {
	var q struct {
		Recorded
		ParentSDKVersion string `json:"parent_sdk_version"`
	}
	if err := json.Unmarshal(line, &q); err != nil {
		return Recorded{}, fmt.Errorf("unmarshal question: %w", err)
	}
	if q.ProducerVersion == "" {
		q.ProducerVersion = q.ParentSDKVersion
	}
	return q.Recorded, nil
}

// Append writes q as one new line at the end of the store at path, creating
// the file if needed. The whole line goes out in a single write.
func Append(path string, q Recorded) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("append question: %w", err)
	}

	line, err := Marshal(q)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append question: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append question: %w", err)
	}
	return f.Close()
}

// Read decodes every question from r in order, skipping blank lines. name is
// used in error messages.
func Read(r io.Reader, name string) ([]Recorded, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var questions []Recorded
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		q, err := Unmarshal(line)
		if err != nil {
			return nil, &LineError{Path: name, Line: lineNo, Err: err}
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return questions, nil
}

// ReadAll loads the store at path. A store without questions is an error:
// there is nothing to replay.
func ReadAll(path string) ([]Recorded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questions file: %w", err)
	}
	defer f.Close()

	questions, err := Read(f, path)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w in questions file at %q", ErrNoQuestions, path)
	}
	return questions, nil
}

// FilterByProducer keeps the questions whose producer version is one of
// producers, preserving order.
func FilterByProducer(questions []Recorded, producers []string) []Recorded {
	var kept []Recorded
	for _, q := range questions {
		if version.Contains(producers, q.ProducerVersion) {
			kept = append(kept, q)
		}
	}
	return kept
}

// WriteFile writes a single question to its own file, as handed to an
// isolated replay process.
func WriteFile(path string, q Recorded) error {
	line, err := Marshal(q)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(line, '\n'), 0o600)
}

// ReadFile reads a file written by WriteFile.
func ReadFile(path string) (Recorded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recorded{}, fmt.Errorf("read question file: %w", err)
	}
	q, err := Unmarshal(bytes.TrimSpace(data))
	if err != nil {
		return Recorded{}, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}
