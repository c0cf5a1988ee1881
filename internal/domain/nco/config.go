package nco

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Default substitutions for invalid mini-batch sizes.
const (
	// DefaultMiniBatchFraction replaces fractions outside (0, 1].
	DefaultMiniBatchFraction = 0.25
	// DefaultMiniBatchCount replaces non-positive integer counts.
	DefaultMiniBatchCount = 128
)

type miniBatchKind int

const (
	miniBatchUnset miniBatchKind = iota
	miniBatchFraction
	miniBatchCount
)

// MiniBatchSize is a mini-batch size given either as a positive instance
// count or as a fraction in (0, 1] of the rollout batch size.
type MiniBatchSize struct {
	kind     miniBatchKind
	fraction float64
	count    int
}

// FractionMiniBatch returns a fractional mini-batch size.
func FractionMiniBatch(f float64) MiniBatchSize {
	return MiniBatchSize{kind: miniBatchFraction, fraction: f}
}

// CountMiniBatch returns a fixed-count mini-batch size.
func CountMiniBatch(n int) MiniBatchSize {
	return MiniBatchSize{kind: miniBatchCount, count: n}
}

// IsFraction reports whether the size is fractional.
func (m MiniBatchSize) IsFraction() bool { return m.kind == miniBatchFraction }

// Fraction returns the fractional size. Valid only when IsFraction.
func (m MiniBatchSize) Fraction() float64 { return m.fraction }

// Count returns the fixed count. Valid only when the size is a count.
func (m MiniBatchSize) Count() int { return m.count }

// Normalize validates the size, substituting documented defaults for invalid
// values with a warning. An unset size (neither count nor fraction) is a
// configuration error and aborts the caller.
func (m MiniBatchSize) Normalize() (MiniBatchSize, error) {
	switch m.kind {
	case miniBatchFraction:
		if m.fraction <= 0 || m.fraction > 1 {
			log.Printf("nco: mini_batch_size fraction must be in (0, 1], got %v; using %v",
				m.fraction, DefaultMiniBatchFraction)
			return FractionMiniBatch(DefaultMiniBatchFraction), nil
		}
		return m, nil
	case miniBatchCount:
		if m.count <= 0 {
			log.Printf("nco: mini_batch_size must be positive, got %d; using %d",
				m.count, DefaultMiniBatchCount)
			return CountMiniBatch(DefaultMiniBatchCount), nil
		}
		return m, nil
	default:
		return m, ErrMiniBatchKind
	}
}

// Resolve returns the effective mini-batch size for a rollout of batchSize
// instances: the fraction applied to the batch size or the fixed count,
// clamped to the batch size and floored at one instance.
func (m MiniBatchSize) Resolve(batchSize int) int {
	var size int
	switch m.kind {
	case miniBatchFraction:
		size = int(float64(batchSize) * m.fraction)
	case miniBatchCount:
		size = m.count
	}
	if size > batchSize {
		size = batchSize
	}
	if size < 1 {
		size = 1
	}
	return size
}

// String renders the size the way it was given.
func (m MiniBatchSize) String() string {
	switch m.kind {
	case miniBatchFraction:
		return strconv.FormatFloat(m.fraction, 'g', -1, 64)
	case miniBatchCount:
		return strconv.Itoa(m.count)
	default:
		return "unset"
	}
}

// MarshalJSON encodes counts as JSON integers and fractions as decimals.
func (m MiniBatchSize) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case miniBatchFraction:
		// Force a decimal point so the kind survives a round trip.
		s := strconv.FormatFloat(m.fraction, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case miniBatchCount:
		return []byte(strconv.Itoa(m.count)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON dispatches on the literal form: numbers written with a
// decimal point or exponent are fractions, bare integers are counts.
// Any other JSON value is rejected with ErrMiniBatchKind.
func (m *MiniBatchSize) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch n := v.(type) {
	case json.Number:
		lit := n.String()
		if strings.ContainsAny(lit, ".eE") {
			f, err := n.Float64()
			if err != nil {
				return err
			}
			*m = FractionMiniBatch(f)
			return nil
		}
		c, err := n.Int64()
		if err != nil {
			return err
		}
		*m = CountMiniBatch(int(c))
		return nil
	case nil:
		*m = MiniBatchSize{}
		return nil
	default:
		return fmt.Errorf("%w: got %T", ErrMiniBatchKind, v)
	}
}

// ParseMiniBatchSize parses a command-line mini-batch size. Values written
// with a decimal point are fractions; bare integers are counts.
func ParseMiniBatchSize(s string) (MiniBatchSize, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return MiniBatchSize{}, fmt.Errorf("%w: %q", ErrMiniBatchKind, s)
		}
		return FractionMiniBatch(f), nil
	}
	c, err := strconv.Atoi(s)
	if err != nil {
		return MiniBatchSize{}, fmt.Errorf("%w: %q", ErrMiniBatchKind, s)
	}
	return CountMiniBatch(c), nil
}

// PPOConfig holds the PPO hyperparameters.
type PPOConfig struct {
	// ClipRange is the half-width of the probability-ratio clamp (epsilon).
	ClipRange float64 `json:"clipRange"`

	// PPOEpochs is the number of inner optimization epochs per rollout (K).
	PPOEpochs int `json:"ppoEpochs"`

	// MiniBatchSize is the mini-batch size, a count or a batch fraction.
	MiniBatchSize MiniBatchSize `json:"miniBatchSize"`

	// VFLambda weights the value-function loss.
	VFLambda float64 `json:"vfLambda"`

	// EntropyLambda weights the entropy bonus.
	EntropyLambda float64 `json:"entropyLambda"`

	// NormalizeAdv standardizes advantages within each mini-batch.
	NormalizeAdv bool `json:"normalizeAdv"`

	// MaxGradNorm is the global gradient-norm ceiling across policy and
	// critic parameters. Non-positive disables clipping.
	MaxGradNorm float64 `json:"maxGradNorm"`

	// LearningRate for the optimizer.
	LearningRate float64 `json:"learningRate"`
}

// DefaultPPOConfig returns the default PPO configuration.
func DefaultPPOConfig() PPOConfig {
	return PPOConfig{
		ClipRange:     0.2,
		PPOEpochs:     2,
		MiniBatchSize: FractionMiniBatch(0.25),
		VFLambda:      0.5,
		EntropyLambda: 0.0,
		NormalizeAdv:  false,
		MaxGradNorm:   0.5,
		LearningRate:  3e-4,
	}
}

// Validate normalizes the configuration, substituting documented defaults
// for recoverable mistakes. Only the mini-batch size is range-checked;
// other numeric pathologies are the caller's responsibility.
func (c PPOConfig) Validate() (PPOConfig, error) {
	mb, err := c.MiniBatchSize.Normalize()
	if err != nil {
		return c, err
	}
	c.MiniBatchSize = mb
	return c, nil
}
