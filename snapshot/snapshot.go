// Package snapshot stores levels as compact binary blobs for tool caches
// and computes content fingerprints that ignore XML layout.
//
// A snapshot is the magic "SFMS", one version byte, then the zstd
// compressed Core Deterministic CBOR encoding of the level. Nested object
// chains are flattened to arrays so that long chains stay within the CBOR
// decoder's nesting limit.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/milk9111/sfmmaps/levels"
)

const (
	Magic   = "SFMS"
	Version = 1
)

var (
	ErrNotSnapshot = errors.New("snapshot: missing SFMS header")
	ErrVersion     = errors.New("snapshot: unsupported version")
)

type levelRecord struct {
	Head levels.LevelHead `cbor:"1,keyasint"`
	Maps []mapRecord      `cbor:"2,keyasint"`
}

type mapRecord struct {
	Head levels.MapHead `cbor:"1,keyasint"`
	// Each entry is one top-level object followed by its nested chain.
	Objects [][]objectRecord `cbor:"2,keyasint"`
}

type objectRecord struct {
	Type     uint16           `cbor:"1,keyasint"`
	X        uint32           `cbor:"2,keyasint"`
	Y        uint32           `cbor:"3,keyasint"`
	Slot     *uint16          `cbor:"4,keyasint,omitempty"`
	Rotation *levels.Rotation `cbor:"5,keyasint,omitempty"`
	Events   []levels.Event   `cbor:"6,keyasint,omitempty"`
	Params   []levels.Param   `cbor:"7,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdDecoder *zstd.Decoder
	defaultPack *Packer
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	// nil and empty slices are the same level.
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler:  cbor.TextUnmarshalerTextString,
		MaxNestedLevels:  65535,
		MaxArrayElements: 2147483647,
	}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}

	defaultPack, err = NewPacker("default")
	if err != nil {
		panic(err)
	}
}

// Packer compresses snapshots at a fixed zstd level. It is safe for
// concurrent use.
type Packer struct {
	enc *zstd.Encoder
}

// NewPacker accepts the zstd level names fastest, default, better and best.
func NewPacker(level string) (*Packer, error) {
	ok, lvl := zstd.EncoderLevelFromString(level)
	if !ok {
		return nil, fmt.Errorf("snapshot: unknown compression level %q", level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd encoder: %w", err)
	}
	return &Packer{enc: enc}, nil
}

func (p *Packer) Pack(l *levels.Level) ([]byte, error) {
	raw, err := canonical(l)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(Magic)+1+len(raw)/2)
	out = append(out, Magic...)
	out = append(out, Version)
	return p.enc.EncodeAll(raw, out), nil
}

// Pack encodes l with the default compression level.
func Pack(l *levels.Level) ([]byte, error) {
	return defaultPack.Pack(l)
}

func Unpack(data []byte) (*levels.Level, error) {
	if len(data) < len(Magic)+1 || !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, ErrNotSnapshot
	}
	if v := data[len(Magic)]; v != Version {
		return nil, fmt.Errorf("%w %d", ErrVersion, v)
	}
	raw, err := zstdDecoder.DecodeAll(data[len(Magic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd decompress: %w", err)
	}
	var rec levelRecord
	if err := decMode.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return fromRecord(&rec)
}

func canonical(l *levels.Level) ([]byte, error) {
	if l == nil {
		return nil, errors.New("snapshot: nil level")
	}
	raw, err := encMode.Marshal(toRecord(l))
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return raw, nil
}

func toRecord(l *levels.Level) *levelRecord {
	rec := &levelRecord{Head: l.Head, Maps: make([]mapRecord, len(l.Maps))}
	for i := range l.Maps {
		m := &l.Maps[i]
		mr := mapRecord{Head: m.Head, Objects: make([][]objectRecord, len(m.Objects))}
		for j := range m.Objects {
			var chain []objectRecord
			for o := &m.Objects[j]; o != nil; o = o.Nested {
				chain = append(chain, objectRecord{
					Type:     o.Type,
					X:        o.X,
					Y:        o.Y,
					Slot:     o.Slot,
					Rotation: o.Rotation,
					Events:   o.Events,
					Params:   o.Params,
				})
			}
			mr.Objects[j] = chain
		}
		rec.Maps[i] = mr
	}
	return rec
}

func fromRecord(rec *levelRecord) (*levels.Level, error) {
	l := &levels.Level{Head: rec.Head}
	for i, mr := range rec.Maps {
		m := levels.Map{Head: mr.Head}
		for j, chain := range mr.Objects {
			if len(chain) == 0 {
				return nil, fmt.Errorf("snapshot: map %d object %d: empty chain", i, j)
			}
			root := &levels.Object{}
			cur := root
			for k, or := range chain {
				if or.Rotation != nil && !or.Rotation.Valid() {
					return nil, fmt.Errorf("snapshot: map %d object %d: %w", i, j, levels.ErrInvalidRotation)
				}
				*cur = levels.Object{
					Type:     or.Type,
					X:        or.X,
					Y:        or.Y,
					Slot:     or.Slot,
					Rotation: or.Rotation,
					Events:   or.Events,
					Params:   or.Params,
				}
				if k < len(chain)-1 {
					cur.Nested = &levels.Object{}
					cur = cur.Nested
				}
			}
			m.Objects = append(m.Objects, *root)
		}
		l.Maps = append(l.Maps, m)
	}
	return l, nil
}
