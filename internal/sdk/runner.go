package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/qcompat/internal/manifest"
)

// ErrInvalidAnalysis is returned when inputs or outputs do not satisfy the
// twine.
var ErrInvalidAnalysis = errors.New("analysis does not match twine")

// Analysis is one run of an app against a question's inputs.
type Analysis struct {
	ID             string
	InputValues    any
	InputManifest  *manifest.Manifest
	OutputValues   any
	OutputManifest *manifest.Manifest
	Logger         *slog.Logger
}

// App is the analysis code a service runs for each question.
type App func(ctx context.Context, a *Analysis) error

// Twine declares what an app accepts and produces, as CUE:
//
//	input_values:    {...}
//	input_manifest:  datasets: ["my_dataset"]
//	output_values:   [...number]
//	output_manifest: datasets: ["output_dataset"]
//
// Every field is optional. An absent values schema means the values must be
// absent too.
type Twine struct {
	ctx   *cue.Context
	value cue.Value
}

// ParseTwine compiles a twine.
func ParseTwine(src string) (*Twine, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("twine.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("parse twine: %w", err)
	}
	return &Twine{ctx: ctx, value: v}, nil
}

// Datasets returns the dataset names declared under field
// ("input_manifest" or "output_manifest").
func (t *Twine) Datasets(field string) ([]string, error) {
	v := t.value.LookupPath(cue.ParsePath(field + ".datasets"))
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, fmt.Errorf("twine %s.datasets: %w", field, err)
	}
	var names []string
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, fmt.Errorf("twine %s.datasets: %w", field, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// ValidateValues checks values against the schema under field
// ("input_values" or "output_values").
func (t *Twine) ValidateValues(field string, values any) error {
	schema := t.value.LookupPath(cue.ParsePath(field))
	if !schema.Exists() {
		if values != nil {
			return fmt.Errorf("%w: %s given but not declared", ErrInvalidAnalysis, field)
		}
		return nil
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAnalysis, field, err)
	}
	// JSON is valid CUE; compiling it keeps integers as integers.
	v := t.ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAnalysis, field, err)
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAnalysis, field, err)
	}
	return nil
}

// ValidateManifest checks m carries every dataset declared under field.
func (t *Twine) ValidateManifest(field string, m *manifest.Manifest) error {
	names, err := t.Datasets(field)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	if m == nil {
		return fmt.Errorf("%w: %s required", ErrInvalidAnalysis, field)
	}
	for _, name := range names {
		if _, ok := m.Datasets[name]; !ok {
			return fmt.Errorf("%w: %s missing dataset %q", ErrInvalidAnalysis, field, name)
		}
	}
	return nil
}

// Runner validates an analysis against its twine around running the app.
type Runner struct {
	Twine *Twine
	App   App
}

// NewRunner compiles twine and pairs it with app.
func NewRunner(twine string, app App) (*Runner, error) {
	t, err := ParseTwine(twine)
	if err != nil {
		return nil, err
	}
	return &Runner{Twine: t, App: app}, nil
}

// Run validates inputs, runs the app and validates outputs.
func (r *Runner) Run(ctx context.Context, a *Analysis) error {
	if err := r.Twine.ValidateValues("input_values", a.InputValues); err != nil {
		return err
	}
	if err := r.Twine.ValidateManifest("input_manifest", a.InputManifest); err != nil {
		return err
	}
	if a.Logger == nil {
		a.Logger = slog.New(slog.DiscardHandler)
	}

	if err := r.App(ctx, a); err != nil {
		return fmt.Errorf("analysis %s: %w", a.ID, err)
	}

	if err := r.Twine.ValidateValues("output_values", a.OutputValues); err != nil {
		return err
	}
	return r.Twine.ValidateManifest("output_manifest", a.OutputManifest)
}
