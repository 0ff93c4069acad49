// Package recorder captures the question a producer SDK version sends, at
// the moment it would be published, without delivering it.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"

	"github.com/roach88/qcompat/internal/ids"
	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/pubsub"
	"github.com/roach88/qcompat/internal/question"
	"github.com/roach88/qcompat/internal/sdk"
)

// ErrNothingCaptured is returned when asking produced no publish call.
var ErrNothingCaptured = errors.New("no question was published")

const (
	inputDataset      = "my_dataset"
	pathWithinDataset = "path-within-dataset"
)

var inputFiles = []string{"a_test_file.csv", "another_test_file.csv"}

// InputValues are the values every recorded question carries.
func InputValues() map[string]any {
	return map[string]any{"height": 4, "width": 72}
}

// Recorder records one question from an SDK version.
type Recorder struct {
	sdk    sdk.SDK
	ids    ids.Generator
	logger *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithIDs sets the generator for service and question UUIDs.
func WithIDs(g ids.Generator) Option {
	return func(r *Recorder) { r.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// New returns a recorder for s.
func New(s sdk.SDK, opts ...Option) *Recorder {
	r := &Recorder{
		sdk:    s,
		ids:    ids.UUIDv4Generator{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record builds a producer and a non-answering consumer on one backend, asks
// the consumer a question through a capturing transport and returns what
// was captured.
func (r *Recorder) Record(ctx context.Context) (question.Recorded, error) {
	dir, err := os.MkdirTemp("", "qcompat-record-*")
	if err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: %w", r.sdk.Version(), err)
	}
	defer os.RemoveAll(dir)

	inputManifest, err := writeInputManifest(dir)
	if err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: %w", r.sdk.Version(), err)
	}

	backend := pubsub.NewBackend(nil)
	consumer, err := r.sdk.NewService(backend,
		sdk.WithoutAnswering(), sdk.WithIDs(r.ids), sdk.WithLogger(r.logger), sdk.WithName("consumer"))
	if err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: create consumer: %w", r.sdk.Version(), err)
	}
	if err := consumer.Serve(ctx); err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: %w", r.sdk.Version(), err)
	}

	capture := pubsub.NewCapture(backend)
	producer, err := r.sdk.NewService(capture,
		sdk.WithIDs(r.ids), sdk.WithLogger(r.logger), sdk.WithName("producer"))
	if err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: create producer: %w", r.sdk.Version(), err)
	}

	_, err = producer.Ask(ctx, consumer.ID(), sdk.Question{
		InputValues:     InputValues(),
		InputManifest:   inputManifest,
		AllowLocalFiles: true,
	})
	if err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: %w", r.sdk.Version(), err)
	}

	captured, ok := capture.Last()
	if !ok {
		return question.Recorded{}, fmt.Errorf("record %s: %w", r.sdk.Version(), ErrNothingCaptured)
	}

	q := question.Recorded{
		ProducerVersion: r.sdk.Version(),
		Question: question.Payload{
			Data:       string(captured.Message.Data),
			Attributes: maps.Clone(captured.Message.Attributes),
		},
	}
	if err := q.Validate(); err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: %w", r.sdk.Version(), err)
	}
	r.logger.Debug("captured question", "producer_version", q.ProducerVersion, "question_uuid", q.UUID())
	return q, nil
}

// RecordTo records a question and appends it to the store at path.
func (r *Recorder) RecordTo(ctx context.Context, path string) (question.Recorded, error) {
	q, err := r.Record(ctx)
	if err != nil {
		return question.Recorded{}, err
	}
	if err := question.Append(path, q); err != nil {
		return question.Recorded{}, fmt.Errorf("record %s: %w", r.sdk.Version(), err)
	}
	return q, nil
}

func writeInputManifest(dir string) (*manifest.Manifest, error) {
	sub := filepath.Join(dir, pathWithinDataset)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return nil, err
	}
	for _, name := range inputFiles {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("blah"), 0o644); err != nil {
			return nil, err
		}
	}
	ds, err := manifest.FromDirectory(inputDataset, dir)
	if err != nil {
		return nil, err
	}
	return manifest.New(ds), nil
}
