package simulator

import (
	_ "embed"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

//go:embed devices.yaml
var builtinDevices []byte

// Profile is the static description of a virtual device.
type Profile struct {
	Name           string          `yaml:"name" json:"name"`
	UserAgent      string          `yaml:"user_agent" json:"user_agent"`
	Width          int             `yaml:"width" json:"width"`
	Height         int             `yaml:"height" json:"height"`
	PixelRatio     float64         `yaml:"pixel_ratio" json:"pixel_ratio"`
	MaxTouchPoints int             `yaml:"max_touch_points" json:"max_touch_points"`
	Mobile         bool            `yaml:"mobile" json:"mobile"`
	Network        NetworkDefaults `yaml:"network" json:"network"`
	Battery        BatteryDefaults `yaml:"battery" json:"battery"`
}

// NetworkDefaults is the connection a device starts with.
type NetworkDefaults struct {
	Type          string `yaml:"type" json:"type"`
	EffectiveType string `yaml:"effective_type" json:"effective_type"`
}

// BatteryDefaults is the battery state a device starts with.
type BatteryDefaults struct {
	Level    float64 `yaml:"level" json:"level"`
	Charging bool    `yaml:"charging" json:"charging"`
}

// Orientation returns the orientation implied by the profile's geometry.
func (p Profile) Orientation() Orientation {
	if p.Width > p.Height {
		return Landscape
	}
	return Portrait
}

// Validate checks that a profile is usable.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("device profile has no name")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("device %q: screen size must be positive", p.Name)
	}
	if p.PixelRatio <= 0 {
		return fmt.Errorf("device %q: pixel_ratio must be positive", p.Name)
	}
	if math.IsNaN(p.Battery.Level) || p.Battery.Level < 0 || p.Battery.Level > 1 {
		return fmt.Errorf("device %q: %w", p.Name, &InvalidBatteryLevelError{Level: p.Battery.Level})
	}
	return nil
}

type catalogFile struct {
	Default string    `yaml:"default"`
	Devices []Profile `yaml:"devices"`
}

// Catalog is an ordered set of device profiles.
type Catalog struct {
	defaultName string
	order       []string
	profiles    map[string]Profile
}

// DefaultCatalog returns the built-in device catalog.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(builtinDevices)
}

// LoadCatalog reads a YAML device catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read device catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse device catalog: %w", err)
	}

	c := &Catalog{profiles: make(map[string]Profile)}
	for _, p := range file.Devices {
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}
	if file.Default != "" {
		if _, ok := c.profiles[file.Default]; !ok {
			return nil, &UnknownDeviceError{Name: file.Default}
		}
		c.defaultName = file.Default
	}
	return c, nil
}

// Add inserts or replaces a profile.
func (c *Catalog) Add(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := c.profiles[p.Name]; !exists {
		c.order = append(c.order, p.Name)
	}
	c.profiles[p.Name] = p
	if c.defaultName == "" {
		c.defaultName = p.Name
	}
	return nil
}

// Merge adds every profile of other, replacing profiles with the same name.
func (c *Catalog) Merge(other *Catalog) error {
	for _, name := range other.order {
		if err := c.Add(other.profiles[name]); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the profile with the given name.
func (c *Catalog) Lookup(name string) (Profile, error) {
	p, ok := c.profiles[name]
	if !ok {
		return Profile{}, &UnknownDeviceError{Name: name}
	}
	return p, nil
}

// Default returns the name of the default device.
func (c *Catalog) Default() string {
	return c.defaultName
}

// Names returns device names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
