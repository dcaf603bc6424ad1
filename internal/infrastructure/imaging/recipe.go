package imaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type ChannelOrder string

const (
	OrderRGB ChannelOrder = "rgb"
	OrderBGR ChannelOrder = "bgr"
)

// RecipeConfig declares the sensitivity scorer's preprocessing parameters.
// These mirror the backend's training-time pipeline and ship alongside the
// model artifact; they are validated once at load, never at use time.
type RecipeConfig struct {
	ResizeDim    int          `json:"resize_dim"`
	InputSize    int          `json:"input_size"`
	Mean         []float32    `json:"mean"`
	Scale        float32      `json:"scale"`
	ChannelOrder ChannelOrder `json:"channel_order"`
}

// DefaultSensitivityRecipe is the reference scorer contract: bilinear resize
// to 256, center-crop 224, BGR channel order, [0,255] range, per-channel
// dataset mean.
func DefaultSensitivityRecipe() RecipeConfig {
	return RecipeConfig{
		ResizeDim:    256,
		InputSize:    224,
		Mean:         []float32{104, 117, 123},
		Scale:        255,
		ChannelOrder: OrderBGR,
	}
}

// LoadRecipe reads a recipe description next to the scorer artifact. A
// missing file falls back to the reference defaults; a present but invalid
// file is a startup error.
func LoadRecipe(path string) (RecipeConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSensitivityRecipe(), nil
	}
	if err != nil {
		return RecipeConfig{}, fmt.Errorf("read recipe file: %w", err)
	}

	var cfg RecipeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return RecipeConfig{}, fmt.Errorf("parse recipe file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RecipeConfig{}, fmt.Errorf("recipe file %s: %w", path, err)
	}
	return cfg, nil
}

func (c RecipeConfig) Validate() error {
	if c.ResizeDim <= 0 || c.InputSize <= 0 {
		return fmt.Errorf("dimensions must be positive, got resize=%d input=%d", c.ResizeDim, c.InputSize)
	}
	if c.InputSize > c.ResizeDim {
		return fmt.Errorf("input size %d exceeds resize dimension %d", c.InputSize, c.ResizeDim)
	}
	if len(c.Mean) != 3 {
		return fmt.Errorf("mean must have exactly 3 entries, got %d", len(c.Mean))
	}
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %v", c.Scale)
	}
	switch c.ChannelOrder {
	case OrderRGB, OrderBGR:
	default:
		return fmt.Errorf("unknown channel order %q", c.ChannelOrder)
	}
	return nil
}
