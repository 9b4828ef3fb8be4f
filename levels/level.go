// Package levels models an sfm_maps level document and converts it to and
// from the XML markup the game reads.
package levels

// Level is the document root: one header plus the ordered submaps. A map's
// index in Maps is the submap id the header refers to.
type Level struct {
	Head LevelHead
	Maps []Map
}

// LevelHead is the document-wide metadata.
type LevelHead struct {
	Name             string
	Version          uint16
	ScreenshotSubmap uint16
	LastSubmap       uint16
	SubmapOrder      []uint16
}

// Map is one submap. The object count written to the file is derived from
// len(Objects) on encode and is not kept here.
type Map struct {
	Head    MapHead
	Objects []Object
}

// MapHead holds the fixed scalar fields of a submap. Colors is an opaque
// blob owned by the game and is carried through untouched.
type MapHead struct {
	Name       string
	Version    uint16
	Tileset    uint16
	Tileset2   uint16
	Bg         uint16
	Spikes     uint16
	Spikes2    uint16
	Width      uint16
	Height     uint16
	Colors     string
	ScrollMode uint16
	Music      uint16
}

// Object is a placed object. Slot and Rotation are optional and omitted from
// the file when nil. Nested forms a chain: every object owns at most one child.
type Object struct {
	Type     uint16
	X        uint32
	Y        uint32
	Slot     *uint16
	Rotation *Rotation
	Events   []Event
	Params   []Param
	Nested   *Object
}

// Event is a node of an object's event tree.
type Event struct {
	ID       uint16
	Params   []Param
	Children []Event
}

// Param is a key/value pair. Keys are not unique.
type Param struct {
	Key   string
	Value string
}

func NewParam(key, value string) Param {
	return Param{Key: key, Value: value}
}

// Depth returns the number of objects in the chain starting at o.
func (o *Object) Depth() int {
	n := 0
	for cur := o; cur != nil; cur = cur.Nested {
		n++
	}
	return n
}

// CountObjects returns the number of top-level objects across all maps.
func (l *Level) CountObjects() int {
	if l == nil {
		return 0
	}
	n := 0
	for i := range l.Maps {
		n += len(l.Maps[i].Objects)
	}
	return n
}
