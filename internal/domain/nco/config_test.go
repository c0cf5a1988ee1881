package nco

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMiniBatchSizeNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      MiniBatchSize
		want    MiniBatchSize
		wantErr error
	}{
		{
			name: "valid fraction passes through",
			in:   FractionMiniBatch(0.25),
			want: FractionMiniBatch(0.25),
		},
		{
			name: "fraction of one is valid",
			in:   FractionMiniBatch(1.0),
			want: FractionMiniBatch(1.0),
		},
		{
			name: "fraction above one falls back to default",
			in:   FractionMiniBatch(1.5),
			want: FractionMiniBatch(DefaultMiniBatchFraction),
		},
		{
			name: "negative fraction falls back to default",
			in:   FractionMiniBatch(-0.5),
			want: FractionMiniBatch(DefaultMiniBatchFraction),
		},
		{
			name: "valid count passes through",
			in:   CountMiniBatch(64),
			want: CountMiniBatch(64),
		},
		{
			name: "zero count falls back to default",
			in:   CountMiniBatch(0),
			want: CountMiniBatch(DefaultMiniBatchCount),
		},
		{
			name: "negative count falls back to default",
			in:   CountMiniBatch(-7),
			want: CountMiniBatch(DefaultMiniBatchCount),
		},
		{
			name:    "unset kind is a configuration error",
			in:      MiniBatchSize{},
			wantErr: ErrMiniBatchKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMiniBatchSizeResolve(t *testing.T) {
	tests := []struct {
		name      string
		size      MiniBatchSize
		batchSize int
		want      int
	}{
		{"quarter of 64", FractionMiniBatch(0.25), 64, 16},
		{"fraction truncates", FractionMiniBatch(0.25), 10, 2},
		{"tiny fraction floors at one", FractionMiniBatch(0.01), 10, 1},
		{"full batch", FractionMiniBatch(1.0), 32, 32},
		{"count below batch", CountMiniBatch(8), 64, 8},
		{"count clamps to batch", CountMiniBatch(128), 16, 16},
		{"count equals batch", CountMiniBatch(16), 16, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.size.Resolve(tt.batchSize); got != tt.want {
				t.Errorf("Resolve(%d) = %d, want %d", tt.batchSize, got, tt.want)
			}
		})
	}
}

func TestMiniBatchSizeJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size MiniBatchSize
		json string
	}{
		{"fraction keeps decimal point", FractionMiniBatch(0.25), "0.25"},
		{"whole fraction forces decimal point", FractionMiniBatch(1), "1.0"},
		{"count stays bare integer", CountMiniBatch(128), "128"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.size)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			if string(data) != tt.json {
				t.Errorf("Marshal() = %s, want %s", data, tt.json)
			}

			var got MiniBatchSize
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if got != tt.size {
				t.Errorf("round trip = %v, want %v", got, tt.size)
			}
		})
	}
}

func TestMiniBatchSizeUnmarshalRejectsNonNumbers(t *testing.T) {
	var m MiniBatchSize
	if err := json.Unmarshal([]byte(`"0.25"`), &m); !errors.Is(err, ErrMiniBatchKind) {
		t.Errorf("Unmarshal(string) error = %v, want %v", err, ErrMiniBatchKind)
	}
}

func TestParseMiniBatchSize(t *testing.T) {
	tests := []struct {
		in      string
		want    MiniBatchSize
		wantErr bool
	}{
		{in: "0.25", want: FractionMiniBatch(0.25)},
		{in: "1.0", want: FractionMiniBatch(1.0)},
		{in: "128", want: CountMiniBatch(128)},
		{in: "1e-1", want: FractionMiniBatch(0.1)},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMiniBatchSize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMiniBatchSize(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMiniBatchSize(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMiniBatchSize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPPOConfigValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		cfg, err := DefaultPPOConfig().Validate()
		if err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if cfg.MiniBatchSize != FractionMiniBatch(0.25) {
			t.Errorf("default mini-batch size = %v, want 0.25", cfg.MiniBatchSize)
		}
	})

	t.Run("invalid mini-batch size is substituted", func(t *testing.T) {
		cfg := DefaultPPOConfig()
		cfg.MiniBatchSize = CountMiniBatch(0)
		validated, err := cfg.Validate()
		if err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if validated.MiniBatchSize != CountMiniBatch(DefaultMiniBatchCount) {
			t.Errorf("mini-batch size = %v, want %d", validated.MiniBatchSize, DefaultMiniBatchCount)
		}
	})

	t.Run("unset mini-batch size is fatal", func(t *testing.T) {
		cfg := DefaultPPOConfig()
		cfg.MiniBatchSize = MiniBatchSize{}
		if _, err := cfg.Validate(); !errors.Is(err, ErrMiniBatchKind) {
			t.Errorf("Validate() error = %v, want %v", err, ErrMiniBatchKind)
		}
	})
}
