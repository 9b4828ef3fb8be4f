package prefabs

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/milk9111/sfmmaps/levels"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// LevelSpec is the hand-editable form of a level. It carries the same data
// as levels.Level; rotations are written in degrees.
type LevelSpec struct {
	Name             string    `yaml:"name" json:"name"`
	Version          uint16    `yaml:"version" json:"version"`
	ScreenshotSubmap uint16    `yaml:"screenshot_submap" json:"screenshot_submap"`
	LastSubmap       uint16    `yaml:"last_submap" json:"last_submap"`
	SubmapOrder      []uint16  `yaml:"submap_order" json:"submap_order"`
	Maps             []MapSpec `yaml:"maps" json:"maps"`
}

type MapSpec struct {
	Name       string       `yaml:"name" json:"name"`
	Version    uint16       `yaml:"version" json:"version"`
	Tileset    uint16       `yaml:"tileset" json:"tileset"`
	Tileset2   uint16       `yaml:"tileset2" json:"tileset2"`
	Bg         uint16       `yaml:"bg" json:"bg"`
	Spikes     uint16       `yaml:"spikes" json:"spikes"`
	Spikes2    uint16       `yaml:"spikes2" json:"spikes2"`
	Width      uint16       `yaml:"width" json:"width"`
	Height     uint16       `yaml:"height" json:"height"`
	Colors     string       `yaml:"colors" json:"colors"`
	ScrollMode uint16       `yaml:"scroll_mode" json:"scroll_mode"`
	Music      uint16       `yaml:"music" json:"music"`
	Objects    []ObjectSpec `yaml:"objects,omitempty" json:"objects,omitempty"`
}

// ObjectSpec describes an object, either inside a LevelSpec or as a
// standalone prefab that tools stamp into maps with Place.
type ObjectSpec struct {
	Name     string      `yaml:"name,omitempty" json:"name,omitempty"`
	Type     uint16      `yaml:"type" json:"type"`
	X        uint32      `yaml:"x" json:"x"`
	Y        uint32      `yaml:"y" json:"y"`
	Slot     *uint16     `yaml:"slot,omitempty" json:"slot,omitempty"`
	Rotation *int        `yaml:"rotation,omitempty" json:"rotation,omitempty"`
	Events   []EventSpec `yaml:"events,omitempty" json:"events,omitempty"`
	Params   []ParamSpec `yaml:"params,omitempty" json:"params,omitempty"`
	Nested   *ObjectSpec `yaml:"nested,omitempty" json:"nested,omitempty"`
}

type EventSpec struct {
	ID     uint16      `yaml:"id" json:"id"`
	Params []ParamSpec `yaml:"params,omitempty" json:"params,omitempty"`
	Events []EventSpec `yaml:"events,omitempty" json:"events,omitempty"`
}

type ParamSpec struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Format is a spec serialization.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
)

// FormatFromPath picks the spec format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	default:
		return "", fmt.Errorf("prefabs: unknown spec format for %s", path)
	}
}

func LoadSpec[T any](filename string) (T, error) {
	var zero T
	data, err := Load(filename)
	if err != nil {
		return zero, fmt.Errorf("prefabs: load %s: %w", filename, err)
	}

	var spec T
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return zero, fmt.Errorf("prefabs: unmarshal %s: %w", filename, err)
	}

	return spec, nil
}

// ParseLevelSpec decodes a level spec. JSON input may carry comments and
// trailing commas.
func ParseLevelSpec(data []byte, format Format) (LevelSpec, error) {
	var spec LevelSpec
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return LevelSpec{}, fmt.Errorf("prefabs: unmarshal level spec: %w", err)
		}
	case FormatJSON, FormatJSONC:
		if err := json.Unmarshal(jsonc.ToJSON(data), &spec); err != nil {
			return LevelSpec{}, fmt.Errorf("prefabs: unmarshal level spec: %w", err)
		}
	default:
		return LevelSpec{}, fmt.Errorf("prefabs: unsupported format %q", format)
	}
	return spec, nil
}

func MarshalLevelSpec(spec LevelSpec, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(spec)
	case FormatJSON, FormatJSONC:
		b, err := json.MarshalIndent(spec, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	default:
		return nil, fmt.Errorf("prefabs: unsupported format %q", format)
	}
}

// GenericLevel builds the canned one-map document, named name.
func GenericLevel(name string) (*levels.Level, error) {
	spec, err := LoadSpec[LevelSpec]("generic_level.yaml")
	if err != nil {
		return nil, err
	}
	spec.Name = name
	for i := range spec.Maps {
		spec.Maps[i].Name = name
	}
	return spec.ToLevel()
}

func LoadObjectSpec(name string) (ObjectSpec, error) {
	return LoadSpec[ObjectSpec](name)
}

func (s LevelSpec) ToLevel() (*levels.Level, error) {
	lvl := &levels.Level{
		Head: levels.LevelHead{
			Name:             s.Name,
			Version:          s.Version,
			ScreenshotSubmap: s.ScreenshotSubmap,
			LastSubmap:       s.LastSubmap,
			SubmapOrder:      append([]uint16(nil), s.SubmapOrder...),
		},
	}
	for i, ms := range s.Maps {
		m := levels.Map{
			Head: levels.MapHead{
				Name:       ms.Name,
				Version:    ms.Version,
				Tileset:    ms.Tileset,
				Tileset2:   ms.Tileset2,
				Bg:         ms.Bg,
				Spikes:     ms.Spikes,
				Spikes2:    ms.Spikes2,
				Width:      ms.Width,
				Height:     ms.Height,
				Colors:     ms.Colors,
				ScrollMode: ms.ScrollMode,
				Music:      ms.Music,
			},
		}
		for j := range ms.Objects {
			o, err := ms.Objects[j].ToObject()
			if err != nil {
				return nil, fmt.Errorf("prefabs: map %d object %d: %w", i, j, err)
			}
			m.Objects = append(m.Objects, o)
		}
		lvl.Maps = append(lvl.Maps, m)
	}
	return lvl, nil
}

func (s ObjectSpec) ToObject() (levels.Object, error) {
	o := levels.Object{
		Type:   s.Type,
		X:      s.X,
		Y:      s.Y,
		Events: eventsFromSpec(s.Events),
		Params: paramsFromSpec(s.Params),
	}
	if s.Slot != nil {
		slot := *s.Slot
		o.Slot = &slot
	}
	if s.Rotation != nil {
		r, err := levels.RotationFromDegrees(*s.Rotation)
		if err != nil {
			return levels.Object{}, err
		}
		o.Rotation = &r
	}
	if s.Nested != nil {
		nested, err := s.Nested.ToObject()
		if err != nil {
			return levels.Object{}, err
		}
		o.Nested = &nested
	}
	return o, nil
}

// Place instantiates the prefab at (x, y). Nested objects keep their offset
// from the prefab origin.
func (s ObjectSpec) Place(x, y uint32) (levels.Object, error) {
	o, err := s.ToObject()
	if err != nil {
		return levels.Object{}, fmt.Errorf("prefabs: %s: %w", s.Name, err)
	}
	dx := int64(x) - int64(s.X)
	dy := int64(y) - int64(s.Y)
	for cur := &o; cur != nil; cur = cur.Nested {
		nx, ny := int64(cur.X)+dx, int64(cur.Y)+dy
		if nx < 0 || ny < 0 || nx > int64(^uint32(0)) || ny > int64(^uint32(0)) {
			return levels.Object{}, fmt.Errorf("prefabs: %s placed at (%d, %d) puts a nested object out of range", s.Name, x, y)
		}
		cur.X, cur.Y = uint32(nx), uint32(ny)
	}
	return o, nil
}

func eventsFromSpec(specs []EventSpec) []levels.Event {
	if len(specs) == 0 {
		return nil
	}
	out := make([]levels.Event, len(specs))
	for i, e := range specs {
		out[i] = levels.Event{ID: e.ID, Params: paramsFromSpec(e.Params), Children: eventsFromSpec(e.Events)}
	}
	return out
}

func paramsFromSpec(specs []ParamSpec) []levels.Param {
	if len(specs) == 0 {
		return nil
	}
	out := make([]levels.Param, len(specs))
	for i, p := range specs {
		out[i] = levels.NewParam(p.Key, p.Value)
	}
	return out
}

// LevelSpecFrom converts a decoded level back into its editable form.
func LevelSpecFrom(l *levels.Level) LevelSpec {
	s := LevelSpec{
		Name:             l.Head.Name,
		Version:          l.Head.Version,
		ScreenshotSubmap: l.Head.ScreenshotSubmap,
		LastSubmap:       l.Head.LastSubmap,
		SubmapOrder:      append([]uint16(nil), l.Head.SubmapOrder...),
	}
	for _, m := range l.Maps {
		h := m.Head
		ms := MapSpec{
			Name:       h.Name,
			Version:    h.Version,
			Tileset:    h.Tileset,
			Tileset2:   h.Tileset2,
			Bg:         h.Bg,
			Spikes:     h.Spikes,
			Spikes2:    h.Spikes2,
			Width:      h.Width,
			Height:     h.Height,
			Colors:     h.Colors,
			ScrollMode: h.ScrollMode,
			Music:      h.Music,
		}
		for i := range m.Objects {
			ms.Objects = append(ms.Objects, objectSpecFrom(&m.Objects[i]))
		}
		s.Maps = append(s.Maps, ms)
	}
	return s
}

func objectSpecFrom(o *levels.Object) ObjectSpec {
	s := ObjectSpec{
		Type:   o.Type,
		X:      o.X,
		Y:      o.Y,
		Events: eventSpecsFrom(o.Events),
		Params: paramSpecsFrom(o.Params),
	}
	if o.Slot != nil {
		slot := *o.Slot
		s.Slot = &slot
	}
	if o.Rotation != nil {
		deg := o.Rotation.Degrees()
		s.Rotation = &deg
	}
	if o.Nested != nil {
		nested := objectSpecFrom(o.Nested)
		s.Nested = &nested
	}
	return s
}

func eventSpecsFrom(events []levels.Event) []EventSpec {
	if len(events) == 0 {
		return nil
	}
	out := make([]EventSpec, len(events))
	for i, e := range events {
		out[i] = EventSpec{ID: e.ID, Params: paramSpecsFrom(e.Params), Events: eventSpecsFrom(e.Children)}
	}
	return out
}

func paramSpecsFrom(params []levels.Param) []ParamSpec {
	if len(params) == 0 {
		return nil
	}
	out := make([]ParamSpec, len(params))
	for i, p := range params {
		out[i] = ParamSpec{Key: p.Key, Value: p.Value}
	}
	return out
}
