// Package sdk emulates the question protocol of the SDK under test, one
// implementation per protocol generation.
//
// Callers never branch on versions themselves: they ask Open for the SDK
// matching a version string and use the Service it builds. Entry points that
// only some generations have (the two manifest decoding conventions) are
// optional interfaces checked with a type assertion.
//
// Generations:
//
//	classic     below 2.0.0   IDs octue.services.<uuid>; manifest embedded as JSON text
//	revisioned  2.0.0 - 3.0.0 IDs octue/<name>:<revision>; manifest embedded as an object;
//	                          sender_type and version attributes required
package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/qcompat/internal/ids"
	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/pubsub"
	"github.com/roach88/qcompat/internal/version"
)

// VersionEnv names the environment variable carrying the installed SDK
// version into child processes.
const VersionEnv = "QCOMPAT_SDK_VERSION"

// Generation names a protocol generation.
type Generation string

const (
	GenerationClassic    Generation = "classic"
	GenerationRevisioned Generation = "revisioned"
)

const (
	revisionedFrom = "2.0.0"
	revisionedTo   = "3.0.0"
)

var (
	// ErrUnknownVersion is returned when no generation implements a version.
	ErrUnknownVersion = errors.New("unknown SDK version")

	// ErrNotInstalled is returned by Installed when VersionEnv is unset.
	ErrNotInstalled = errors.New("no SDK version installed")

	// ErrMissingAttribute is returned by Answer when a required message
	// attribute is absent.
	ErrMissingAttribute = errors.New("missing message attribute")

	// ErrMalformedQuestion is returned by Answer when the question body does
	// not decode in the consumer's generation.
	ErrMalformedQuestion = errors.New("malformed question")
)

// SDK is one installed version of the SDK under test.
type SDK interface {
	Version() string
	Generation() Generation
	NewService(tr pubsub.Transport, opts ...Option) (Service, error)
}

// Service is a service instance able to ask and answer questions.
type Service interface {
	// ID is the service's identifier, from which its topics are named.
	ID() string
	// Serve creates the service's question topic.
	Serve(ctx context.Context) error
	// Ask sends a question to the service with the given ID.
	Ask(ctx context.Context, serviceID string, q Question) (Asked, error)
	// Answer handles one question message as delivered by a push
	// subscription (base64 data) and publishes the answer.
	Answer(ctx context.Context, msg pubsub.Message) error
}

// ManifestStringDecoder is implemented by generations that decode an
// embedded manifest from its JSON text.
type ManifestStringDecoder interface {
	DecodeManifestString(text string) (*manifest.Manifest, error)
}

// ManifestMapDecoder is implemented by generations that decode an embedded
// manifest from an already-parsed object.
type ManifestMapDecoder interface {
	DecodeManifestMap(obj map[string]any) (*manifest.Manifest, error)
}

// Question is what a producer sends.
type Question struct {
	InputValues     any
	InputManifest   *manifest.Manifest
	AllowLocalFiles bool
}

// Asked identifies a question in flight.
type Asked struct {
	QuestionUUID string
	AnswerTopic  string
}

// Option configures a Service.
type Option func(*options)

type options struct {
	name      string
	revision  string
	answering bool
	runner    *Runner
	ids       ids.Generator
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		name:      "example-service",
		answering: true,
		ids:       ids.UUIDv4Generator{},
		logger:    slog.New(slog.DiscardHandler),
	}
}

// WithoutAnswering makes Answer a no-op.
func WithoutAnswering() Option {
	return func(o *options) { o.answering = false }
}

// WithRunner sets the analysis run for answered questions. A service without
// a runner answers with empty output.
func WithRunner(r *Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithIDs sets the generator for service and question UUIDs.
func WithIDs(g ids.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithLogger sets the logger local log records also go to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName sets the service name used by generations with named IDs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithRevision sets the revision tag used by generations with named IDs.
func WithRevision(rev string) Option {
	return func(o *options) { o.revision = rev }
}

// Open returns the SDK implementing v.
func Open(v string) (SDK, error) {
	if !version.IsValid(v) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, v)
	}
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")

	revisioned, err := version.AtLeast(v, revisionedFrom)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownVersion, err)
	}
	tooNew, err := version.AtLeast(v, revisionedTo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownVersion, err)
	}

	switch {
	case tooNew:
		return nil, fmt.Errorf("%w: %s is newer than every known generation", ErrUnknownVersion, v)
	case revisioned:
		return revisionedSDK{version: v}, nil
	default:
		return classicSDK{version: v}, nil
	}
}

// Installed returns the SDK named by VersionEnv.
func Installed() (SDK, error) {
	v := os.Getenv(VersionEnv)
	if v == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNotInstalled, VersionEnv)
	}
	return Open(v)
}
