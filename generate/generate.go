// Package generate populates maps from tengo scripts.
//
// A script sees the globals width, height, seed and name describing the
// target map, and two host functions:
//
//	place(type, x, y[, opts])   opts: {slot, rotation, params: [[k, v]], events: [{id, params, events}]}
//	prefab(name, x, y)          stamps an object prefab at (x, y)
//
// Objects are appended to the map in call order once the whole script has
// run successfully.
package generate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/milk9111/sfmmaps/levels"
	"github.com/milk9111/sfmmaps/prefabs"
)

const DefaultMaxObjects = 10000

var ErrTooManyObjects = errors.New("generate: object limit reached")

type Options struct {
	Seed int64

	// MaxObjects caps how many objects one run may place. Zero means
	// DefaultMaxObjects.
	MaxObjects int

	// Prefab resolves names passed to prefab(). Defaults to
	// prefabs.LoadObjectSpec.
	Prefab func(name string) (prefabs.ObjectSpec, error)
}

type runtime struct {
	opts    Options
	placed  []levels.Object
	prefabs map[string]prefabs.ObjectSpec
}

// RunScript loads a script through prefabs.LoadScript and runs it against m.
func RunScript(ctx context.Context, name string, m *levels.Map, opts Options) error {
	src, err := prefabs.LoadScript(name)
	if err != nil {
		return fmt.Errorf("generate: load %s: %w", name, err)
	}
	return Run(ctx, src, m, opts)
}

// Run executes script against m. On any error m is left untouched.
func Run(ctx context.Context, script []byte, m *levels.Map, opts Options) error {
	if m == nil {
		return errors.New("generate: nil map")
	}
	if opts.MaxObjects <= 0 {
		opts.MaxObjects = DefaultMaxObjects
	}
	if opts.Prefab == nil {
		opts.Prefab = prefabs.LoadObjectSpec
	}

	rt := &runtime{opts: opts, prefabs: map[string]prefabs.ObjectSpec{}}

	s := tengo.NewScript(script)
	s.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))
	globals := map[string]any{
		"width":  int64(m.Head.Width),
		"height": int64(m.Head.Height),
		"seed":   opts.Seed,
		"name":   m.Head.Name,
		"place":  &tengo.UserFunction{Name: "place", Value: rt.place},
		"prefab": &tengo.UserFunction{Name: "prefab", Value: rt.prefab},
	}
	for k, v := range globals {
		if err := s.Add(k, v); err != nil {
			return fmt.Errorf("generate: define %s: %w", k, err)
		}
	}

	compiled, err := s.Compile()
	if err != nil {
		return fmt.Errorf("generate: compile: %w", err)
	}
	if err := compiled.RunContext(ctx); err != nil {
		return fmt.Errorf("generate: run: %w", err)
	}

	m.Objects = append(m.Objects, rt.placed...)
	return nil
}

func (rt *runtime) add(o levels.Object) error {
	if len(rt.placed) >= rt.opts.MaxObjects {
		return fmt.Errorf("%w (%d)", ErrTooManyObjects, rt.opts.MaxObjects)
	}
	rt.placed = append(rt.placed, o)
	return nil
}

func (rt *runtime) place(args ...tengo.Object) (tengo.Object, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, tengo.ErrWrongNumArguments
	}
	typ, err := toUint16(args[0], "type")
	if err != nil {
		return nil, err
	}
	x, err := toUint32(args[1], "x")
	if err != nil {
		return nil, err
	}
	y, err := toUint32(args[2], "y")
	if err != nil {
		return nil, err
	}

	o := levels.Object{Type: typ, X: x, Y: y}
	if len(args) == 4 {
		if err := applyOptions(&o, args[3]); err != nil {
			return nil, err
		}
	}
	if err := rt.add(o); err != nil {
		return nil, err
	}
	return tengo.UndefinedValue, nil
}

func (rt *runtime) prefab(args ...tengo.Object) (tengo.Object, error) {
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	name, ok := tengo.ToString(args[0])
	if !ok || strings.TrimSpace(name) == "" {
		return nil, tengo.ErrInvalidArgumentType{Name: "name", Expected: "string", Found: args[0].TypeName()}
	}
	x, err := toUint32(args[1], "x")
	if err != nil {
		return nil, err
	}
	y, err := toUint32(args[2], "y")
	if err != nil {
		return nil, err
	}

	spec, ok := rt.prefabs[name]
	if !ok {
		spec, err = rt.opts.Prefab(name)
		if err != nil {
			return nil, err
		}
		rt.prefabs[name] = spec
	}
	o, err := spec.Place(x, y)
	if err != nil {
		return nil, err
	}
	if err := rt.add(o); err != nil {
		return nil, err
	}
	return tengo.UndefinedValue, nil
}

func applyOptions(o *levels.Object, arg tengo.Object) error {
	opts, ok := asMap(arg)
	if !ok {
		return tengo.ErrInvalidArgumentType{Name: "opts", Expected: "map", Found: arg.TypeName()}
	}
	for key, value := range opts {
		switch key {
		case "slot":
			slot, err := toUint16(value, "slot")
			if err != nil {
				return err
			}
			o.Slot = &slot
		case "rotation":
			deg, ok := tengo.ToInt(value)
			if !ok {
				return tengo.ErrInvalidArgumentType{Name: "rotation", Expected: "int", Found: value.TypeName()}
			}
			r, err := levels.RotationFromDegrees(deg)
			if err != nil {
				return err
			}
			o.Rotation = &r
		case "params":
			params, err := toParams(value)
			if err != nil {
				return err
			}
			o.Params = params
		case "events":
			events, err := toEvents(value)
			if err != nil {
				return err
			}
			o.Events = events
		default:
			return fmt.Errorf("generate: unknown place option %q", key)
		}
	}
	return nil
}

func toParams(obj tengo.Object) ([]levels.Param, error) {
	items, ok := asArray(obj)
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "params", Expected: "array", Found: obj.TypeName()}
	}
	out := make([]levels.Param, 0, len(items))
	for _, item := range items {
		pair, ok := asArray(item)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("generate: param must be a [key, value] pair, got %s", item.String())
		}
		key, ok1 := tengo.ToString(pair[0])
		val, ok2 := tengo.ToString(pair[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("generate: param must be a [key, value] pair, got %s", item.String())
		}
		out = append(out, levels.NewParam(key, val))
	}
	return out, nil
}

func toEvents(obj tengo.Object) ([]levels.Event, error) {
	items, ok := asArray(obj)
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "events", Expected: "array", Found: obj.TypeName()}
	}
	out := make([]levels.Event, 0, len(items))
	for _, item := range items {
		fields, ok := asMap(item)
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "event", Expected: "map", Found: item.TypeName()}
		}
		idObj, ok := fields["id"]
		if !ok {
			return nil, errors.New("generate: event without id")
		}
		id, err := toUint16(idObj, "id")
		if err != nil {
			return nil, err
		}
		ev := levels.Event{ID: id}
		if p, ok := fields["params"]; ok {
			if ev.Params, err = toParams(p); err != nil {
				return nil, err
			}
		}
		if c, ok := fields["events"]; ok {
			if ev.Children, err = toEvents(c); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func asMap(obj tengo.Object) (map[string]tengo.Object, bool) {
	switch v := obj.(type) {
	case *tengo.Map:
		return v.Value, true
	case *tengo.ImmutableMap:
		return v.Value, true
	}
	return nil, false
}

func asArray(obj tengo.Object) ([]tengo.Object, bool) {
	switch v := obj.(type) {
	case *tengo.Array:
		return v.Value, true
	case *tengo.ImmutableArray:
		return v.Value, true
	}
	return nil, false
}

func toUint16(obj tengo.Object, name string) (uint16, error) {
	v, err := toRanged(obj, name, math.MaxUint16)
	return uint16(v), err
}

func toUint32(obj tengo.Object, name string) (uint32, error) {
	v, err := toRanged(obj, name, math.MaxUint32)
	return uint32(v), err
}

func toRanged(obj tengo.Object, name string, max int64) (int64, error) {
	if _, ok := obj.(*tengo.Int); !ok {
		return 0, tengo.ErrInvalidArgumentType{Name: name, Expected: "int", Found: obj.TypeName()}
	}
	v, _ := tengo.ToInt64(obj)
	if v < 0 || v > max {
		return 0, fmt.Errorf("generate: %s %d out of range [0, %d]", name, v, max)
	}
	return v, nil
}
