package player

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/pubsub"
	"github.com/roach88/qcompat/internal/question"
	"github.com/roach88/qcompat/internal/recorder"
	"github.com/roach88/qcompat/internal/results"
	"github.com/roach88/qcompat/internal/sdk"
	"github.com/roach88/qcompat/internal/version"
)

func openSDK(t *testing.T, v string) sdk.SDK {
	t.Helper()
	s, err := sdk.Open(v)
	require.NoError(t, err)
	return s
}

func recordQuestion(t *testing.T, producerVersion string) question.Recorded {
	t.Helper()
	q, err := recorder.New(openSDK(t, producerVersion)).Record(context.Background())
	require.NoError(t, err)
	return q
}

// countingFactory wraps InMemory and counts acquisitions and releases.
type countingFactory struct {
	acquired, released int
	transport          pubsub.Transport
}

func (f *countingFactory) factory(ctx context.Context, mb *pubsub.Mailboxes) (pubsub.Transport, func(), error) {
	f.acquired++
	tr, _, err := InMemory(ctx, mb)
	f.transport = tr
	return tr, func() { f.released++ }, err
}

func TestReplay_SameVersionIsCompatible(t *testing.T) {
	for _, v := range []string{"0.41.1", "1.2.0", "2.0.0"} {
		t.Run(v, func(t *testing.T) {
			resultsPath := filepath.Join(t.TempDir(), "results.json")
			var out bytes.Buffer

			ok, err := New(openSDK(t, v), resultsPath, WithOutput(&out)).
				Replay(context.Background(), recordQuestion(t, v), v)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "Processing question from version "+v+"... succeeded.\n", out.String())

			m, err := results.Load(resultsPath)
			require.NoError(t, err)
			got, tested := m.Get(v, v)
			assert.True(t, tested)
			assert.True(t, got)
		})
	}
}

func TestReplay_BoundaryShortCircuits(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "results.json")
	counter := &countingFactory{}

	ok, err := New(openSDK(t, "2.0.0"), resultsPath, WithTransportFactory(counter.factory)).
		Replay(context.Background(), recordQuestion(t, "1.2.0"), "2.0.0")

	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrBoundary)
	var be *BoundaryError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "2.0.0", be.Boundary)
	assert.Zero(t, counter.acquired, "no consumer should be built for a straddling pair")

	m, err := results.Load(resultsPath)
	require.NoError(t, err)
	got, tested := m.Get("1.2.0", "2.0.0")
	assert.True(t, tested)
	assert.False(t, got)
}

func TestReplay_EndToEndMatrix(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "version_compatibility_results.json")
	q := recordQuestion(t, "1.2.0")
	ctx := context.Background()

	ok, err := New(openSDK(t, "1.2.0"), resultsPath).Replay(ctx, q, "1.2.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = New(openSDK(t, "2.0.0"), resultsPath).Replay(ctx, q, "2.0.0")
	assert.ErrorIs(t, err, ErrBoundary)
	assert.False(t, ok)

	data, err := os.ReadFile(resultsPath)
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "end_to_end", data)
}

func TestReplay_NoBoundariesLetsGenerationsFail(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "results.json")

	ok, err := New(openSDK(t, "2.0.0"), resultsPath, WithBoundaries(version.Boundaries{})).
		Replay(context.Background(), recordQuestion(t, "1.2.0"), "2.0.0")

	assert.False(t, ok)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBoundary)
	assert.ErrorIs(t, err, sdk.ErrMissingAttribute)
}

func TestReplay_ReleasesTransportOnEveryPath(t *testing.T) {
	ctx := context.Background()

	counter := &countingFactory{}
	ok, err := New(openSDK(t, "1.2.0"), filepath.Join(t.TempDir(), "r.json"), WithTransportFactory(counter.factory)).
		Replay(ctx, recordQuestion(t, "1.2.0"), "1.2.0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, counter.acquired)
	assert.Equal(t, 1, counter.released)

	broken := recordQuestion(t, "1.2.0")
	broken.Question.Data = `{"input_values": {}, "input_manifest": "{\"datasets\": 7}"}`
	counter = &countingFactory{}
	ok, err = New(openSDK(t, "1.2.0"), filepath.Join(t.TempDir(), "r.json"), WithTransportFactory(counter.factory)).
		Replay(ctx, broken, "1.2.0")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrManifest)
	assert.Equal(t, 1, counter.acquired)
	assert.Equal(t, 1, counter.released)
}

func TestReplay_TransportFactoryFailure(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "results.json")
	boom := errors.New("no transport")
	failing := func(ctx context.Context, mb *pubsub.Mailboxes) (pubsub.Transport, func(), error) {
		return nil, nil, boom
	}

	ok, err := New(openSDK(t, "1.2.0"), resultsPath, WithTransportFactory(failing)).
		Replay(context.Background(), recordQuestion(t, "1.2.0"), "1.2.0")
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)

	m, err := results.Load(resultsPath)
	require.NoError(t, err)
	_, tested := m.Get("1.2.0", "1.2.0")
	assert.True(t, tested)
}

func TestReplay_InvalidQuestionRecordsFalse(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "results.json")
	q := recordQuestion(t, "1.2.0")
	delete(q.Question.Attributes, question.UUIDAttribute)
	var out bytes.Buffer

	ok, err := New(openSDK(t, "1.2.0"), resultsPath, WithOutput(&out)).Replay(context.Background(), q, "1.2.0")
	assert.False(t, ok)
	assert.ErrorIs(t, err, question.ErrMissingUUID)
	assert.Equal(t, "Processing question from version 1.2.0... failed.\n", out.String())

	m, err := results.Load(resultsPath)
	require.NoError(t, err)
	got, tested := m.Get("1.2.0", "1.2.0")
	assert.True(t, tested)
	assert.False(t, got)
}

func TestReplay_UnwritableResults(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "missing-dir", "results.json")

	ok, err := New(openSDK(t, "1.2.0"), resultsPath).Replay(context.Background(), recordQuestion(t, "1.2.0"), "1.2.0")
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record verdict")
}

func TestReplay_PreservesOtherVerdicts(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, results.RecordVerdict(resultsPath, "0.40.0", "0.41.1", true))

	_, err := New(openSDK(t, "1.2.0"), resultsPath).Replay(context.Background(), recordQuestion(t, "1.2.0"), "1.2.0")
	require.NoError(t, err)

	m, err := results.Load(resultsPath)
	require.NoError(t, err)
	got, tested := m.Get("0.40.0", "0.41.1")
	assert.True(t, tested)
	assert.True(t, got)
}

// mute builds services that accept every question and never publish.
type mute struct{ sdk.SDK }

func (m mute) NewService(tr pubsub.Transport, opts ...sdk.Option) (sdk.Service, error) {
	return muteService{}, nil
}

func (m mute) DecodeManifestMap(obj map[string]any) (*manifest.Manifest, error) {
	return manifest.FromMap(obj)
}

type muteService struct{}

func (muteService) ID() string                      { return "octue.services.mute" }
func (muteService) Serve(ctx context.Context) error { return nil }
func (muteService) Ask(ctx context.Context, id string, q sdk.Question) (sdk.Asked, error) {
	return sdk.Asked{}, nil
}
func (muteService) Answer(ctx context.Context, msg pubsub.Message) error { return nil }

func TestReplay_NoResultPublished(t *testing.T) {
	resultsPath := filepath.Join(t.TempDir(), "results.json")

	ok, err := New(mute{openSDK(t, "1.2.0")}, resultsPath).
		Replay(context.Background(), recordQuestion(t, "1.2.0"), "1.2.0")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoResult)
}
