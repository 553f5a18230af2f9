package domain

import "fmt"

// Supported generation models.
const (
	ModelFluxPro11      = "flux-pro-1.1"
	ModelFluxPro        = "flux-pro"
	ModelFluxDev        = "flux-dev"
	ModelFluxPro11Ultra = "flux-pro-1.1-ultra"
)

// KnownModels lists the models accepted by the remote service.
var KnownModels = []string{ModelFluxPro11, ModelFluxPro, ModelFluxDev, ModelFluxPro11Ultra}

// GenerationParams is the shared parameter template applied to every prompt of
// a batch. Each job receives its own copy at creation so later edits to the
// template never touch in-flight work.
type GenerationParams struct {
	Model            string  `json:"model"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	SafetyTolerance  int     `json:"safety_tolerance"`
	Seed             *int64  `json:"seed,omitempty"`
	Guidance         float64 `json:"guidance"`
	Steps            int     `json:"steps"`
	PromptUpsampling bool    `json:"prompt_upsampling"`
	RawMode          bool    `json:"raw_mode"`
	AspectRatio      string  `json:"aspect_ratio"`
	OutputFormat     string  `json:"output_format"`
}

// DefaultParams returns the template used when a request leaves fields unset.
func DefaultParams() GenerationParams {
	return GenerationParams{
		Model:           ModelFluxPro11,
		Width:           1024,
		Height:          768,
		SafetyTolerance: 2,
		Guidance:        2.5,
		Steps:           40,
		AspectRatio:     "16:9",
		OutputFormat:    "jpeg",
	}
}

// Validate checks the template against the remote service's accepted ranges.
func (p GenerationParams) Validate() error {
	if !validModel(p.Model) {
		return fmt.Errorf("%w: unknown model %q", ErrInvalidInput, p.Model)
	}
	if p.Width <= 0 || p.Height <= 0 || p.Width%32 != 0 || p.Height%32 != 0 {
		return fmt.Errorf("%w: width and height must be positive multiples of 32", ErrInvalidInput)
	}
	if p.SafetyTolerance < 0 || p.SafetyTolerance > 3 {
		return fmt.Errorf("%w: safety tolerance must be between 0 and 3", ErrInvalidInput)
	}
	if p.Guidance <= 0 || p.Guidance > 20 {
		return fmt.Errorf("%w: guidance must be in (0, 20]", ErrInvalidInput)
	}
	if p.Steps < 1 || p.Steps > 150 {
		return fmt.Errorf("%w: steps must be between 1 and 150", ErrInvalidInput)
	}
	switch p.OutputFormat {
	case "jpeg", "png":
	default:
		return fmt.Errorf("%w: output format must be jpeg or png", ErrInvalidInput)
	}
	return nil
}

// Clone returns a value copy that shares no memory with the receiver.
func (p GenerationParams) Clone() GenerationParams {
	out := p
	if p.Seed != nil {
		seed := *p.Seed
		out.Seed = &seed
	}
	return out
}

func validModel(model string) bool {
	for _, m := range KnownModels {
		if m == model {
			return true
		}
	}
	return false
}
