package phase

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"
)

// StageFile is the on-disk description of a stage: its entities with their
// phase catalogs and initial placements, and the coordination rules between
// them. Rules are kept raw here; the coordinator compiles them.
type StageFile struct {
	Entities []EntitySpec `yaml:"entities"`
	Rules    []RuleSpec   `yaml:"rules"`
}

type PlacementSpec struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
	Scale    float64 `yaml:"scale"`
}

type EntitySpec struct {
	ID        string        `yaml:"id"`
	Kind      Kind          `yaml:"kind"`
	Layer     int           `yaml:"layer"`
	Default   string        `yaml:"default"`
	Placement PlacementSpec `yaml:"placement"`
	Phases    []PhaseSpec   `yaml:"phases"`
}

type AppearanceSpec struct {
	Shape   string   `yaml:"shape"`
	Width   float64  `yaml:"width"`
	Height  float64  `yaml:"height"`
	Fill    string   `yaml:"fill"`
	Accent  string   `yaml:"accent"`
	Image   string   `yaml:"image"`
	Palette []string `yaml:"palette"`
}

type AnimationSpec struct {
	Name         string  `yaml:"name"`
	BobAmplitude float64 `yaml:"bob"`
	Rate         float64 `yaml:"rate"`
	Sway         float64 `yaml:"sway"`
	Pulse        float64 `yaml:"pulse"`
}

type AudioSpec struct {
	Track  string  `yaml:"track"`
	Volume float64 `yaml:"volume"`
	Loop   bool    `yaml:"loop"`
}

type TransitionSpec struct {
	Duration  string `yaml:"duration"`
	Style     string `yaml:"style"`
	BeatAlign bool   `yaml:"beat_align"`
	Easing    string `yaml:"easing"`
}

type MetaSpec struct {
	Mood      string   `yaml:"mood"`
	Intensity int      `yaml:"intensity"`
	Tags      []string `yaml:"tags"`
}

type PhaseSpec struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Appearance *AppearanceSpec `yaml:"appearance"`
	Animation  *AnimationSpec  `yaml:"animation"`
	Audio      *AudioSpec      `yaml:"audio"`
	Transition TransitionSpec  `yaml:"transition"`
	Meta       MetaSpec        `yaml:"meta"`
}

type RuleSpec struct {
	ID              string            `yaml:"id"`
	From            string            `yaml:"from"`
	To              []string          `yaml:"to"`
	Mode            string            `yaml:"mode"`
	Mapping         string            `yaml:"mapping"`
	Custom          map[string]string `yaml:"custom"`
	Condition       string            `yaml:"condition"`
	ConditionScript string            `yaml:"condition_script"`
	Priority        string            `yaml:"priority"`
	Delay           string            `yaml:"delay"`
	Stagger         string            `yaml:"stagger"`
}

// ParseStageFile decodes a YAML stage description.
func ParseStageFile(data []byte) (*StageFile, error) {
	var sf StageFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("phase: unmarshal stage file: %w", err)
	}
	return &sf, nil
}

// BuildCatalog validates every phase of the file and returns the catalog.
func (sf *StageFile) BuildCatalog() (*Catalog, error) {
	c := NewCatalog()
	for _, es := range sf.Entities {
		if err := c.AddEntity(es.ID, es.Kind); err != nil {
			return nil, err
		}
		for _, ps := range es.Phases {
			p, err := ps.toPhase(es.ID)
			if err != nil {
				return nil, err
			}
			if err := c.Insert(p); err != nil {
				return nil, err
			}
		}
		if es.Default != "" {
			if err := c.SetDefault(es.ID, es.Default); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (ps PhaseSpec) toPhase(entityID string) (Phase, error) {
	p := Phase{
		ID:       ps.ID,
		EntityID: entityID,
		Name:     ps.Name,
		Meta: Metadata{
			Mood:      Mood(strings.ToLower(strings.TrimSpace(ps.Meta.Mood))),
			Intensity: ps.Meta.Intensity,
			Tags:      ps.Meta.Tags,
		},
		Transition: TransitionConfig{
			Style:     Style(strings.ToLower(ps.Transition.Style)),
			BeatAlign: ps.Transition.BeatAlign,
			Easing:    Easing(strings.ToLower(ps.Transition.Easing)),
		},
	}
	if ps.Transition.Duration != "" {
		d, err := time.ParseDuration(ps.Transition.Duration)
		if err != nil {
			return Phase{}, fmt.Errorf("%w: %s/%s: duration: %v", ErrInvalidPhase, entityID, ps.ID, err)
		}
		p.Transition.Duration = d
	}
	if a := ps.Appearance; a != nil {
		fill, err := ParseColor(a.Fill)
		if err != nil {
			return Phase{}, fmt.Errorf("%w: %s/%s: fill: %v", ErrInvalidPhase, entityID, ps.ID, err)
		}
		accent, err := ParseColor(a.Accent)
		if err != nil {
			return Phase{}, fmt.Errorf("%w: %s/%s: accent: %v", ErrInvalidPhase, entityID, ps.ID, err)
		}
		app := &Appearance{
			Shape:  Shape(strings.ToLower(a.Shape)),
			Width:  a.Width,
			Height: a.Height,
			Fill:   fill,
			Accent: accent,
			Image:  a.Image,
		}
		for _, s := range a.Palette {
			c, err := ParseColor(s)
			if err != nil {
				return Phase{}, fmt.Errorf("%w: %s/%s: palette: %v", ErrInvalidPhase, entityID, ps.ID, err)
			}
			app.Palette = append(app.Palette, c)
		}
		p.Appearance = app
	}
	if a := ps.Animation; a != nil {
		p.Animation = &Animation{Name: a.Name, BobAmplitude: a.BobAmplitude, Rate: a.Rate, Sway: a.Sway, Pulse: a.Pulse}
	}
	if a := ps.Audio; a != nil {
		vol := a.Volume
		if vol == 0 {
			vol = 1
		}
		p.Audio = &Audio{Track: a.Track, Volume: vol, Loop: a.Loop}
	}
	return p, nil
}

// ParseColor accepts "#rgb", "#rrggbb", "#rrggbbaa" or an SVG colour name.
// The empty string is transparent black.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return color.RGBA{}, nil
	}
	if !strings.HasPrefix(s, "#") {
		c, ok := colornames.Map[s]
		if !ok {
			return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
		}
		return c, nil
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("bad colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
