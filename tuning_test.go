package phototriage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTuningIsValid(t *testing.T) {
	t.Parallel()

	if err := DefaultTuning().Validate(); err != nil {
		t.Errorf("compiled-in defaults must validate: %v", err)
	}
}

func TestLoadTuningPartialOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tuning.toml")
	content := `
feedback_window = 32

[blur]
default = 0.5
min = 0.1
max = 0.9
step = 0.02
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}

	if got.Blur.Default != 0.5 || got.Blur.Step != 0.02 {
		t.Errorf("blur bound not overridden: %+v", got.Blur)
	}
	if got.FeedbackWindow != 32 {
		t.Errorf("feedback_window = %d, want 32", got.FeedbackWindow)
	}
	// Untouched fields keep their defaults.
	if got.Duplicate != DefaultTuning().Duplicate {
		t.Errorf("duplicate bound changed without override: %+v", got.Duplicate)
	}
	if got.CompletionMinSamples != defaultCompletionSamples {
		t.Errorf("completion_min_samples = %d, want default %d", got.CompletionMinSamples, defaultCompletionSamples)
	}
}

func TestLoadTuningMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadTuning(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Error("missing file should error")
	}
}

func TestTuningValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Tuning)
		wantErr string
	}{
		{
			name:    "default outside bounds",
			mutate:  func(tu *Tuning) { tu.Blur.Default = 2.0 },
			wantErr: "outside",
		},
		{
			name:    "inverted range",
			mutate:  func(tu *Tuning) { tu.Screenshot.Min = 0.95 },
			wantErr: "exceeds max",
		},
		{
			name:    "zero step",
			mutate:  func(tu *Tuning) { tu.Duplicate.Step = 0 },
			wantErr: "step must be positive",
		},
		{
			name:    "retention below window",
			mutate:  func(tu *Tuning) { tu.FeedbackRetention = 1 },
			wantErr: "feedback_retention",
		},
		{
			name:    "accuracy above one",
			mutate:  func(tu *Tuning) { tu.AcceptableAccuracy = 1.5 },
			wantErr: "acceptable_accuracy",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tu := DefaultTuning()
			tc.mutate(&tu)
			err := tu.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestBoundClamp(t *testing.T) {
	t.Parallel()

	b := Bound{Min: 0.1, Max: 0.9}
	tests := []struct {
		in, want float64
	}{
		{in: 0.5, want: 0.5},
		{in: -1, want: 0.1},
		{in: 0.1, want: 0.1},
		{in: 0.9, want: 0.9},
		{in: 2, want: 0.9},
	}
	for _, tc := range tests {
		tc := tc
		if got := b.Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
