package orchestrate

import (
	"strings"

	"github.com/roach88/qcompat/internal/version"
)

// Child command names. Both are hidden subcommands of the qcompat binary,
// run inside the installed environment of one SDK version.
const (
	RecordQuestionCommand  = "record-question"
	ProcessQuestionCommand = "process-question"
)

// Children builds the argv of the isolated child processes.
type Children struct {
	// Executable is the command prefix, usually the absolute path of the
	// running binary.
	Executable []string
}

// RecordQuestion returns the argv that records one question from the
// installed producer version into questionsFile.
func (c Children) RecordQuestion(questionsFile string) []string {
	args := append([]string{}, c.Executable...)
	return append(args, RecordQuestionCommand, "--questions-file", questionsFile)
}

// ProcessQuestion returns the argv that replays the question in
// questionFile against the installed consumer version.
func (c Children) ProcessQuestion(questionFile, resultsFile, consumerVersion string, boundaries version.Boundaries) []string {
	args := append([]string{}, c.Executable...)
	args = append(args, ProcessQuestionCommand,
		"--question-file", questionFile,
		"--results-file", resultsFile,
		"--consumer-version", consumerVersion,
	)
	if boundaries != nil {
		args = append(args, "--breaking-boundaries", strings.Join(boundaries, ","))
	}
	return args
}
