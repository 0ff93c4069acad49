package question

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuestion(producer, uuid string) Recorded {
	return Recorded{
		ProducerVersion: producer,
		Question: Payload{
			Data: `{"input_values": {"height": 4, "width": 72}, "input_manifest": "{\"datasets\": {}}"}`,
			Attributes: map[string]string{
				UUIDAttribute:  uuid,
				"forward_logs": "1",
			},
		},
	}
}

func TestAppendAndReadAll_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorded_questions.jsonl")

	q1 := sampleQuestion("0.40.0", "uuid-1")
	q2 := sampleQuestion("0.41.1", "uuid-2")
	require.NoError(t, Append(path, q1))
	require.NoError(t, Append(path, q2))

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, q1, got[0])
	assert.Equal(t, q2, got[1])
	for _, q := range got {
		assert.NotEmpty(t, q.UUID())
	}
}

func TestAppend_OneLinePerQuestion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	require.NoError(t, Append(path, sampleQuestion("0.40.0", "a")))
	require.NoError(t, Append(path, sampleQuestion("0.40.0", "b")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"producer_version":"0.40.0","question":{"data":`))
}

func TestAppend_RejectsQuestionWithoutUUID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	q := sampleQuestion("0.40.0", "")

	err := Append(path, q)
	require.ErrorIs(t, err, ErrMissingUUID)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written")
}

func TestRead_ToleratesBlankLines(t *testing.T) {
	line, err := Marshal(sampleQuestion("0.35.0", "u"))
	require.NoError(t, err)

	input := "\n" + string(line) + "\n\n   \n" + string(line) + "\n\n\n"
	got, err := Read(strings.NewReader(input), "mem")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRead_MalformedLineNamesLine(t *testing.T) {
	line, err := Marshal(sampleQuestion("0.35.0", "u"))
	require.NoError(t, err)

	input := string(line) + "\n{not json\n"
	_, err = Read(strings.NewReader(input), "questions.jsonl")
	require.Error(t, err)

	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 2, lineErr.Line)
	assert.Contains(t, err.Error(), "questions.jsonl:2")
}

func TestReadAll_EmptyStoreIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))

	_, err := ReadAll(path)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestReadAll_MissingFile(t *testing.T) {
	_, err := ReadAll(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	q := sampleQuestion("0.35.0", "u")
	q.Question.Data = `{"expr": "a < b && c > d"}`

	line, err := Marshal(q)
	require.NoError(t, err)
	assert.Contains(t, string(line), `a < b && c > d`)
}

func TestFilterByProducer(t *testing.T) {
	questions := []Recorded{
		sampleQuestion("0.39.0", "a"),
		sampleQuestion("0.40.0", "b"),
		sampleQuestion("0.41.0", "c"),
	}

	got := FilterByProducer(questions, []string{"0.41.0", "v0.39.0"})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].UUID())
	assert.Equal(t, "c", got[1].UUID())

	assert.Empty(t, FilterByProducer(questions, []string{"1.0.0"}))
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "question.json")
	q := sampleQuestion("0.41.1", "single")

	require.NoError(t, WriteFile(path, q))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, sampleQuestion("0.1.0", "x").Validate())
	assert.Error(t, sampleQuestion("", "x").Validate())
	assert.ErrorIs(t, sampleQuestion("0.1.0", "").Validate(), ErrMissingUUID)
}

func TestUnmarshal_LegacyProducerKey(t *testing.T) {
	q, err := Unmarshal([]byte(`{"parent_sdk_version":"0.16.0","question":{"data":"{}","attributes":{"question_uuid":"q-1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "0.16.0", q.ProducerVersion)
	assert.Equal(t, "q-1", q.UUID())

	q, err = Unmarshal([]byte(`{"producer_version":"0.41.1","parent_sdk_version":"0.16.0","question":{"data":"{}","attributes":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "0.41.1", q.ProducerVersion)
}
