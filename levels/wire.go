package levels

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// The wire types mirror the file layout. Scalars are pointers so a missing
// element can be told apart from a zero value on decode.

// u16 and u32 parse their text exactly: no surrounding space, no sign and no
// empty value, which encoding/xml would otherwise read as 0.
type (
	u16 uint16
	u32 uint32
)

func (v *u16) UnmarshalText(text []byte) error {
	n, err := parseUint(text, 16)
	*v = u16(n)
	return err
}

func (v *u32) UnmarshalText(text []byte) error {
	n, err := parseUint(text, 32)
	*v = u32(n)
	return err
}

func parseUint(text []byte, bits int) (uint64, error) {
	if len(text) == 0 {
		return 0, fmt.Errorf("empty value where a %d-bit unsigned integer is required", bits)
	}
	return strconv.ParseUint(string(text), 10, bits)
}

type wireLevel struct {
	XMLName xml.Name       `xml:"sfm_maps"`
	Head    *wireLevelHead `xml:"maps_head"`
	Maps    []wireMap      `xml:"sfm_map"`
}

type wireLevelHead struct {
	Name             *string          `xml:"maps_name"`
	Version          *u16             `xml:"maps_version"`
	ScreenshotSubmap *u16             `xml:"screenshot_submap"`
	LastSubmap       *u16             `xml:"last_submap"`
	SubmapOrder      *wireSubmapOrder `xml:"submap_order"`
}

type wireSubmapOrder struct {
	Maps []wireSubmap `xml:"map"`
}

type wireSubmap struct {
	ID *u16 `xml:"id,attr"`
}

type wireMap struct {
	Head    *wireMapHead `xml:"head"`
	Objects *wireObjects `xml:"objects"`
}

type wireMapHead struct {
	Name       *string `xml:"name"`
	Version    *u16    `xml:"version"`
	Tileset    *u16    `xml:"tileset"`
	Tileset2   *u16    `xml:"tileset2"`
	Bg         *u16    `xml:"bg"`
	Spikes     *u16    `xml:"spikes"`
	Spikes2    *u16    `xml:"spikes2"`
	Width      *u16    `xml:"width"`
	Height     *u16    `xml:"height"`
	Colors     *string `xml:"colors"`
	ScrollMode *u16    `xml:"scroll_mode"`
	Music      *u16    `xml:"music"`
	NumObjects *u32    `xml:"num_objects"`
}

type wireObjects struct {
	Objects []wireObject `xml:"object"`
}

type wireObject struct {
	Type     *u16        `xml:"type,attr"`
	X        *u32        `xml:"x,attr"`
	Y        *u32        `xml:"y,attr"`
	Slot     *u16        `xml:"slot,attr,omitempty"`
	Rotation *Rotation   `xml:"sprite_angle,attr,omitempty"`
	Events   []wireEvent `xml:"event"`
	Params   []wireParam `xml:"param"`
	Nested   *wireObject `xml:"obj"`
}

type wireEvent struct {
	ID       *u16        `xml:"eventIndex,attr"`
	Params   []wireParam `xml:"param"`
	Children []wireEvent `xml:"event"`
}

type wireParam struct {
	Key *string `xml:"key,attr"`
	Val *string `xml:"val,attr"`
}

func ref[T any](v T) *T {
	return &v
}

// toWire builds the wire tree for l. It is the only place num_objects is
// computed.
func toWire(l *Level) (*wireLevel, error) {
	if err := checkText("maps_head/maps_name", l.Head.Name); err != nil {
		return nil, err
	}
	order := make([]wireSubmap, len(l.Head.SubmapOrder))
	for i, id := range l.Head.SubmapOrder {
		order[i] = wireSubmap{ID: ref(u16(id))}
	}
	w := &wireLevel{
		Head: &wireLevelHead{
			Name:             ref(l.Head.Name),
			Version:          ref(u16(l.Head.Version)),
			ScreenshotSubmap: ref(u16(l.Head.ScreenshotSubmap)),
			LastSubmap:       ref(u16(l.Head.LastSubmap)),
			SubmapOrder:      &wireSubmapOrder{Maps: order},
		},
		Maps: make([]wireMap, len(l.Maps)),
	}
	for i := range l.Maps {
		m, err := mapToWire(fmt.Sprintf("sfm_map[%d]", i), &l.Maps[i])
		if err != nil {
			return nil, err
		}
		w.Maps[i] = m
	}
	return w, nil
}

func mapToWire(path string, m *Map) (wireMap, error) {
	h := m.Head
	if err := checkText(path+"/head/name", h.Name); err != nil {
		return wireMap{}, err
	}
	if err := checkText(path+"/head/colors", h.Colors); err != nil {
		return wireMap{}, err
	}
	objects := make([]wireObject, len(m.Objects))
	for i := range m.Objects {
		o, err := objectToWire(fmt.Sprintf("%s/objects/object[%d]", path, i), &m.Objects[i])
		if err != nil {
			return wireMap{}, err
		}
		objects[i] = *o
	}
	return wireMap{
		Head: &wireMapHead{
			Name:       ref(h.Name),
			Version:    ref(u16(h.Version)),
			Tileset:    ref(u16(h.Tileset)),
			Tileset2:   ref(u16(h.Tileset2)),
			Bg:         ref(u16(h.Bg)),
			Spikes:     ref(u16(h.Spikes)),
			Spikes2:    ref(u16(h.Spikes2)),
			Width:      ref(u16(h.Width)),
			Height:     ref(u16(h.Height)),
			Colors:     ref(h.Colors),
			ScrollMode: ref(u16(h.ScrollMode)),
			Music:      ref(u16(h.Music)),
			NumObjects: ref(u32(len(m.Objects))),
		},
		Objects: &wireObjects{Objects: objects},
	}, nil
}

// objectToWire walks the nested chain with a loop so chain length does not
// grow the call stack.
func objectToWire(path string, o *Object) (*wireObject, error) {
	var root *wireObject
	link := &root
	for cur := o; cur != nil; cur = cur.Nested {
		if cur.Rotation != nil && !cur.Rotation.Valid() {
			return nil, &EncodeError{Path: path + "/@sprite_angle", Err: fmt.Errorf("%w: %d", ErrInvalidRotation, uint8(*cur.Rotation))}
		}
		events, err := eventsToWire(path, cur.Events)
		if err != nil {
			return nil, err
		}
		params, err := paramsToWire(path, cur.Params)
		if err != nil {
			return nil, err
		}
		w := &wireObject{
			Type:   ref(u16(cur.Type)),
			X:      ref(u32(cur.X)),
			Y:      ref(u32(cur.Y)),
			Events: events,
			Params: params,
		}
		if cur.Slot != nil {
			w.Slot = ref(u16(*cur.Slot))
		}
		if cur.Rotation != nil {
			w.Rotation = ref(*cur.Rotation)
		}
		*link = w
		link = &w.Nested
		path += "/obj"
	}
	return root, nil
}

func eventsToWire(parent string, events []Event) ([]wireEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	out := make([]wireEvent, len(events))
	for i := range events {
		path := fmt.Sprintf("%s/event[%d]", parent, i)
		params, err := paramsToWire(path, events[i].Params)
		if err != nil {
			return nil, err
		}
		children, err := eventsToWire(path, events[i].Children)
		if err != nil {
			return nil, err
		}
		out[i] = wireEvent{ID: ref(u16(events[i].ID)), Params: params, Children: children}
	}
	return out, nil
}

func paramsToWire(parent string, params []Param) ([]wireParam, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make([]wireParam, len(params))
	for i, p := range params {
		path := fmt.Sprintf("%s/param[%d]", parent, i)
		if err := checkText(path+"/@key", p.Key); err != nil {
			return nil, err
		}
		if err := checkText(path+"/@val", p.Value); err != nil {
			return nil, err
		}
		out[i] = wireParam{Key: ref(p.Key), Val: ref(p.Value)}
	}
	return out, nil
}

// checkText rejects strings encoding/xml would silently replace with U+FFFD,
// which would break the round trip.
func checkText(path, s string) error {
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return &EncodeError{Path: path, Err: fmt.Errorf("invalid UTF-8 at byte %d", i)}
			}
		}
		if !isXMLChar(r) {
			return &EncodeError{Path: path, Err: fmt.Errorf("character %U at byte %d is not allowed in XML", r, i)}
		}
	}
	return nil
}

func isXMLChar(r rune) bool {
	return r == 0x09 ||
		r == 0x0A ||
		r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}

func fromWire(w *wireLevel) (*Level, error) {
	h := w.Head
	if h == nil {
		return nil, missing("maps_head")
	}
	switch {
	case h.Name == nil:
		return nil, missing("maps_head/maps_name")
	case h.Version == nil:
		return nil, missing("maps_head/maps_version")
	case h.ScreenshotSubmap == nil:
		return nil, missing("maps_head/screenshot_submap")
	case h.LastSubmap == nil:
		return nil, missing("maps_head/last_submap")
	case h.SubmapOrder == nil:
		return nil, missing("maps_head/submap_order")
	}

	l := &Level{
		Head: LevelHead{
			Name:             *h.Name,
			Version:          uint16(*h.Version),
			ScreenshotSubmap: uint16(*h.ScreenshotSubmap),
			LastSubmap:       uint16(*h.LastSubmap),
		},
	}
	if n := len(h.SubmapOrder.Maps); n > 0 {
		l.Head.SubmapOrder = make([]uint16, n)
		for i, m := range h.SubmapOrder.Maps {
			if m.ID == nil {
				return nil, missing(fmt.Sprintf("maps_head/submap_order/map[%d]/@id", i))
			}
			l.Head.SubmapOrder[i] = uint16(*m.ID)
		}
	}
	if len(w.Maps) > 0 {
		l.Maps = make([]Map, len(w.Maps))
		for i := range w.Maps {
			m, err := mapFromWire(fmt.Sprintf("sfm_map[%d]", i), &w.Maps[i])
			if err != nil {
				return nil, err
			}
			l.Maps[i] = m
		}
	}
	return l, nil
}

func mapFromWire(path string, w *wireMap) (Map, error) {
	h := w.Head
	if h == nil {
		return Map{}, missing(path + "/head")
	}
	if h.Name == nil {
		return Map{}, missing(path + "/head/name")
	}
	var m Map
	fields := []struct {
		name string
		src  *u16
		dst  *uint16
	}{
		{"version", h.Version, &m.Head.Version},
		{"tileset", h.Tileset, &m.Head.Tileset},
		{"tileset2", h.Tileset2, &m.Head.Tileset2},
		{"bg", h.Bg, &m.Head.Bg},
		{"spikes", h.Spikes, &m.Head.Spikes},
		{"spikes2", h.Spikes2, &m.Head.Spikes2},
		{"width", h.Width, &m.Head.Width},
		{"height", h.Height, &m.Head.Height},
		{"scroll_mode", h.ScrollMode, &m.Head.ScrollMode},
		{"music", h.Music, &m.Head.Music},
	}
	for _, f := range fields {
		if f.src == nil {
			return Map{}, missing(path + "/head/" + f.name)
		}
		*f.dst = uint16(*f.src)
	}
	if h.Colors == nil {
		return Map{}, missing(path + "/head/colors")
	}
	m.Head.Name = *h.Name
	m.Head.Colors = *h.Colors

	// num_objects must be present and numeric, but the object list is
	// rebuilt from the elements actually present.
	if h.NumObjects == nil {
		return Map{}, missing(path + "/head/num_objects")
	}
	if w.Objects == nil {
		return Map{}, missing(path + "/objects")
	}
	if n := len(w.Objects.Objects); n > 0 {
		m.Objects = make([]Object, n)
		for i := range w.Objects.Objects {
			o, err := objectFromWire(fmt.Sprintf("%s/objects/object[%d]", path, i), &w.Objects.Objects[i])
			if err != nil {
				return Map{}, err
			}
			m.Objects[i] = *o
		}
	}
	return m, nil
}

func objectFromWire(path string, w *wireObject) (*Object, error) {
	var root *Object
	link := &root
	for cur := w; cur != nil; cur = cur.Nested {
		switch {
		case cur.Type == nil:
			return nil, missing(path + "/@type")
		case cur.X == nil:
			return nil, missing(path + "/@x")
		case cur.Y == nil:
			return nil, missing(path + "/@y")
		}
		events, err := eventsFromWire(path, cur.Events)
		if err != nil {
			return nil, err
		}
		params, err := paramsFromWire(path, cur.Params)
		if err != nil {
			return nil, err
		}
		o := &Object{
			Type:     uint16(*cur.Type),
			X:        uint32(*cur.X),
			Y:        uint32(*cur.Y),
			Rotation: cur.Rotation,
			Events:   events,
			Params:   params,
		}
		if cur.Slot != nil {
			o.Slot = ref(uint16(*cur.Slot))
		}
		*link = o
		link = &o.Nested
		path += "/obj"
	}
	return root, nil
}

func eventsFromWire(parent string, events []wireEvent) ([]Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	out := make([]Event, len(events))
	for i := range events {
		path := fmt.Sprintf("%s/event[%d]", parent, i)
		if events[i].ID == nil {
			return nil, missing(path + "/@eventIndex")
		}
		params, err := paramsFromWire(path, events[i].Params)
		if err != nil {
			return nil, err
		}
		children, err := eventsFromWire(path, events[i].Children)
		if err != nil {
			return nil, err
		}
		out[i] = Event{ID: uint16(*events[i].ID), Params: params, Children: children}
	}
	return out, nil
}

func paramsFromWire(parent string, params []wireParam) ([]Param, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make([]Param, len(params))
	for i, p := range params {
		path := fmt.Sprintf("%s/param[%d]", parent, i)
		if p.Key == nil {
			return nil, missing(path + "/@key")
		}
		if p.Val == nil {
			return nil, missing(path + "/@val")
		}
		out[i] = Param{Key: *p.Key, Value: *p.Val}
	}
	return out, nil
}
