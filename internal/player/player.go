// Package player replays a recorded question against the installed consumer
// SDK version and records whether it was handled.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"

	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/pubsub"
	"github.com/roach88/qcompat/internal/question"
	"github.com/roach88/qcompat/internal/results"
	"github.com/roach88/qcompat/internal/sdk"
	"github.com/roach88/qcompat/internal/version"
)

const (
	outputDataset = "output_dataset"

	twine = `
input_values: {...}
input_manifest: datasets: ["my_dataset"]
output_values: [...number]
output_manifest: datasets: ["output_dataset"]
`
)

// TransportFactory acquires the transport a replay runs over, delivering
// answers into mailboxes. release is called on every exit path.
type TransportFactory func(ctx context.Context, mailboxes *pubsub.Mailboxes) (tr pubsub.Transport, release func(), err error)

// InMemory is the default TransportFactory.
func InMemory(ctx context.Context, mailboxes *pubsub.Mailboxes) (pubsub.Transport, func(), error) {
	return pubsub.NewBackend(mailboxes), func() {}, nil
}

// Player replays questions against one consumer SDK.
type Player struct {
	sdk         sdk.SDK
	resultsPath string
	boundaries  version.Boundaries
	transports  TransportFactory
	out         io.Writer
	logger      *slog.Logger
}

// Option configures a Player.
type Option func(*Player)

// WithBoundaries sets the breaking versions. The default is
// version.DefaultBoundaries().
func WithBoundaries(b version.Boundaries) Option {
	return func(p *Player) { p.boundaries = b }
}

// WithTransportFactory replaces InMemory.
func WithTransportFactory(f TransportFactory) Option {
	return func(p *Player) { p.transports = f }
}

// WithOutput sets where progress lines go.
func WithOutput(w io.Writer) Option {
	return func(p *Player) { p.out = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// New returns a player for consumer SDK s writing verdicts to resultsPath.
func New(s sdk.SDK, resultsPath string, opts ...Option) *Player {
	p := &Player{
		sdk:         s,
		resultsPath: resultsPath,
		boundaries:  version.DefaultBoundaries(),
		transports:  InMemory,
		out:         io.Discard,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Replay hands q to a fresh consumer service labelled consumerVersion and
// records the verdict in the results file before returning. A false verdict
// comes with the error that caused it.
func (p *Player) Replay(ctx context.Context, q question.Recorded, consumerVersion string) (bool, error) {
	fmt.Fprintf(p.out, "Processing question from version %s... ", q.ProducerVersion)

	replayErr := p.replay(ctx, q, consumerVersion)
	compatible := replayErr == nil

	if err := results.RecordVerdict(p.resultsPath, q.ProducerVersion, consumerVersion, compatible); err != nil {
		fmt.Fprintln(p.out, "failed.")
		return false, errors.Join(replayErr, fmt.Errorf("record verdict: %w", err))
	}

	if !compatible {
		fmt.Fprintln(p.out, "failed.")
		p.logger.Debug("replay failed",
			"producer_version", q.ProducerVersion, "consumer_version", consumerVersion, "error", replayErr)
		return false, replayErr
	}
	fmt.Fprintln(p.out, "succeeded.")
	return true, nil
}

func (p *Player) replay(ctx context.Context, q question.Recorded, consumerVersion string) error {
	if err := q.Validate(); err != nil {
		return err
	}

	cut, err := p.boundaries.Straddled(q.ProducerVersion, consumerVersion)
	if err != nil {
		return err
	}
	if cut != "" {
		return &BoundaryError{Producer: q.ProducerVersion, Consumer: consumerVersion, Boundary: cut}
	}

	dir, err := os.MkdirTemp("", "qcompat-output-*")
	if err != nil {
		return fmt.Errorf("output manifest: %w", err)
	}
	defer os.RemoveAll(dir)
	outputManifest, err := writeOutputManifest(dir)
	if err != nil {
		return fmt.Errorf("output manifest: %w", err)
	}

	runner, err := sdk.NewRunner(twine, analysis(outputManifest))
	if err != nil {
		return err
	}

	mailboxes := pubsub.NewMailboxes()
	tr, release, err := p.transports(ctx, mailboxes)
	if err != nil {
		return fmt.Errorf("acquire transport: %w", err)
	}
	defer release()

	consumer, err := p.sdk.NewService(tr, sdk.WithRunner(runner), sdk.WithLogger(p.logger), sdk.WithName("consumer"))
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	answerTopic := NormalizeAnswerTopic(consumer.ID(), q.UUID())
	mailboxes.Register(answerTopic)

	if err := checkInputManifest(p.sdk, q.Question.Data); err != nil {
		return err
	}

	msg := pubsub.Message{
		Data:       pubsub.EncodeData([]byte(q.Question.Data)),
		Attributes: maps.Clone(q.Question.Attributes),
	}
	if err := consumer.Serve(ctx); err != nil {
		return err
	}
	if err := consumer.Answer(ctx, msg); err != nil {
		return err
	}

	return checkResult(mailboxes, answerTopic)
}

func analysis(outputManifest *manifest.Manifest) sdk.App {
	return func(ctx context.Context, a *sdk.Analysis) error {
		a.Logger.Info("Starting analysis.")
		a.OutputValues = []int{1, 2, 3, 4}
		a.OutputManifest = outputManifest
		a.Logger.Info("Finished analysis.")
		return nil
	}
}

func writeOutputManifest(dir string) (*manifest.Manifest, error) {
	sub := filepath.Join(dir, "path-within-dataset")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return nil, err
	}
	for _, name := range []string{"a_test_file.csv", "another_test_file.csv"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("blah"), 0o644); err != nil {
			return nil, err
		}
	}
	ds, err := manifest.FromDirectory(outputDataset, dir)
	if err != nil {
		return nil, err
	}
	return manifest.New(ds), nil
}

// checkResult requires a result message among the answers.
func checkResult(mailboxes *pubsub.Mailboxes, topic string) error {
	msgs, err := mailboxes.Messages(topic)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		var body struct {
			Type string `json:"type"`
			Kind string `json:"kind"`
		}
		if json.Unmarshal(m.Data, &body) != nil {
			continue
		}
		if body.Type == "result" || body.Kind == "result" {
			return nil
		}
	}
	return fmt.Errorf("%w on %s (%d messages)", ErrNoResult, topic, len(msgs))
}
