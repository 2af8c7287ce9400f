package search

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/preferences"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"gopkg.in/yaml.v3"
)

// MarkerClass is one category of map annotation.
type MarkerClass string

const (
	ClassSpots MarkerClass = "spots"
	ClassSigns MarkerClass = "signs"
)

// ErrUnknownPreset is returned when a view is requested with an unregistered preset.
var ErrUnknownPreset = errors.New("unknown map view preset")

const (
	DefaultLocality       = "seattle, wa"
	defaultMaxPredictions = 5
)

// ViewConfig enumerates everything that differs between map view variants.
type ViewConfig struct {
	Name                 string           `yaml:"name" json:"name"`
	ShowControlsPanel    bool             `yaml:"showControlsPanel" json:"showControlsPanel"`
	SpotsLimitMax        int              `yaml:"spotsLimitMax" json:"spotsLimitMax"`
	DefaultSpotsLimit    int              `yaml:"defaultSpotsLimit" json:"defaultSpotsLimit"`
	EnabledMarkerClasses []MarkerClass    `yaml:"enabledMarkerClasses" json:"enabledMarkerClasses"`
	DefaultCenter        model.Coordinate `yaml:"defaultCenter" json:"defaultCenter"`
	DefaultZoom          int              `yaml:"defaultZoom" json:"defaultZoom"`
	Locality             string           `yaml:"locality" json:"locality"`
	MaxPredictions       int              `yaml:"maxPredictions" json:"maxPredictions"`
}

// BuiltinPresets are always available, and may be overridden by a presets file.
func BuiltinPresets() map[string]ViewConfig {
	seattle := model.Coordinate{Lat: 47.6062, Lng: -122.3321}
	return map[string]ViewConfig{
		"default": {
			Name:                 "default",
			ShowControlsPanel:    true,
			SpotsLimitMax:        preferences.MaxSpotsLimit,
			DefaultSpotsLimit:    10,
			EnabledMarkerClasses: []MarkerClass{ClassSpots, ClassSigns},
			DefaultCenter:        seattle,
			DefaultZoom:          15,
			Locality:             DefaultLocality,
			MaxPredictions:       defaultMaxPredictions,
		},
		"compact": {
			Name:                 "compact",
			ShowControlsPanel:    false,
			SpotsLimitMax:        10,
			DefaultSpotsLimit:    5,
			EnabledMarkerClasses: []MarkerClass{ClassSpots},
			DefaultCenter:        seattle,
			DefaultZoom:          15,
			Locality:             DefaultLocality,
			MaxPredictions:       defaultMaxPredictions,
		},
	}
}

// Normalize fills zero values with defaults and clamps limits.
func (c ViewConfig) Normalize(locality string) ViewConfig {
	if c.SpotsLimitMax <= 0 || c.SpotsLimitMax > preferences.MaxSpotsLimit {
		c.SpotsLimitMax = preferences.MaxSpotsLimit
	}
	if c.DefaultSpotsLimit <= 0 {
		c.DefaultSpotsLimit = 10
	}
	c.DefaultSpotsLimit = preferences.ClampSpotsLimit(c.DefaultSpotsLimit, c.SpotsLimitMax)
	if len(c.EnabledMarkerClasses) == 0 {
		c.EnabledMarkerClasses = []MarkerClass{ClassSpots, ClassSigns}
	}
	if c.Locality == "" {
		c.Locality = locality
	}
	if c.Locality == "" {
		c.Locality = DefaultLocality
	}
	c.Locality = strings.ToLower(strings.TrimSpace(c.Locality))
	if c.MaxPredictions <= 0 {
		c.MaxPredictions = defaultMaxPredictions
	}
	if c.DefaultZoom <= 0 {
		c.DefaultZoom = 15
	}
	return c
}

func (c ViewConfig) Validate() error {
	for _, class := range c.EnabledMarkerClasses {
		if class != ClassSpots && class != ClassSigns {
			return fmt.Errorf("preset %q: unknown marker class %q", c.Name, class)
		}
	}
	if c.DefaultCenter != (model.Coordinate{}) {
		if err := c.DefaultCenter.Validate(); err != nil {
			return fmt.Errorf("preset %q: default center: %w", c.Name, err)
		}
	}
	return nil
}

func (c ViewConfig) classEnabled(class MarkerClass) bool {
	for _, e := range c.EnabledMarkerClasses {
		if e == class {
			return true
		}
	}
	return false
}

type presetsFile struct {
	Presets []ViewConfig `yaml:"presets"`
}

// LoadPresets returns the built-in presets merged with those in path. An empty path
// yields only the built-ins.
func LoadPresets(path, locality string) (map[string]ViewConfig, error) {
	presets := BuiltinPresets()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read presets file: %w", err)
		}
		var f presetsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse presets file: %w", err)
		}
		for _, p := range f.Presets {
			if p.Name == "" {
				return nil, errors.New("preset without a name")
			}
			presets[p.Name] = p
		}
	}
	for name, p := range presets {
		p = p.Normalize(locality)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		presets[name] = p
	}
	return presets, nil
}

// PresetNames lists preset names in sorted order.
func PresetNames(presets map[string]ViewConfig) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
