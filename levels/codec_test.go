package levels

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func uint16Ptr(v uint16) *uint16 {
	return &v
}

func rotationPtr(r Rotation) *Rotation {
	return &r
}

func testHead(name string, music uint16) MapHead {
	return MapHead{
		Name:     name,
		Version:  103,
		Tileset:  20,
		Tileset2: 20,
		Bg:       1,
		Spikes:   4,
		Spikes2:  40,
		Width:    1600,
		Height:   608,
		Colors:   "5A0200000600000005",
		Music:    music,
	}
}

func testLevel() *Level {
	return &Level{
		Head: LevelHead{Name: "Test", Version: 103, SubmapOrder: []uint16{0}},
		Maps: []Map{{Head: testHead("Test", 60)}},
	}
}

func richLevel() *Level {
	return &Level{
		Head: LevelHead{
			Name:             "Rich & <strange> \"level\"",
			Version:          103,
			ScreenshotSubmap: 1,
			LastSubmap:       2,
			SubmapOrder:      []uint16{2, 0, 1, 1},
		},
		Maps: []Map{
			{
				Head: testHead("first", 60),
				Objects: []Object{
					{Type: 1, X: 0, Y: 0},
					{
						Type:     7,
						X:        4294967295,
						Y:        12,
						Slot:     uint16Ptr(0),
						Rotation: rotationPtr(Rotate0),
						Events: []Event{
							{ID: 0},
							{ID: 3, Params: []Param{NewParam("k", "v"), NewParam("k", "v")}},
						},
						Params: []Param{NewParam("", ""), NewParam("line", "a\nb\tc\r\n")},
						Nested: &Object{Type: 8, X: 1, Y: 2, Rotation: rotationPtr(Rotate270)},
					},
				},
			},
			{Head: testHead("  padded  ", 0)},
			{Head: MapHead{}},
		},
	}
}

func TestEncodeConcreteScenario(t *testing.T) {
	lvl := testLevel()
	text, err := Encode(lvl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := `<sfm_maps><maps_head><maps_name>Test</maps_name><maps_version>103</maps_version>` +
		`<screenshot_submap>0</screenshot_submap><last_submap>0</last_submap>` +
		`<submap_order><map id="0"></map></submap_order></maps_head>` +
		`<sfm_map><head><name>Test</name><version>103</version><tileset>20</tileset><tileset2>20</tileset2>` +
		`<bg>1</bg><spikes>4</spikes><spikes2>40</spikes2><width>1600</width><height>608</height>` +
		`<colors>5A0200000600000005</colors><scroll_mode>0</scroll_mode><music>60</music>` +
		`<num_objects>0</num_objects></head><objects></objects></sfm_map></sfm_maps>`
	if text != want {
		t.Fatalf("unexpected output:\n got %s\nwant %s", text, want)
	}

	got, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(lvl) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, lvl)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		lvl  *Level
	}{
		{"concrete", testLevel()},
		{"rich", richLevel()},
		{"empty", &Level{}},
		{"no_maps_with_order", &Level{Head: LevelHead{SubmapOrder: []uint16{65535}}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for _, indent := range []string{"", "  "} {
				text, err := EncodeIndent(c.lvl, "", indent)
				if err != nil {
					t.Fatalf("Encode(indent=%q): %v", indent, err)
				}
				got, err := Decode(text)
				if err != nil {
					t.Fatalf("Decode(indent=%q): %v\n%s", indent, err, text)
				}
				if !got.Equal(c.lvl) {
					t.Fatalf("round trip mismatch (indent=%q):\n got %+v\nwant %+v", indent, got, c.lvl)
				}
			}
		})
	}
}

func TestEncodeNeverSelfCloses(t *testing.T) {
	text, err := Encode(richLevel())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(text, "/>") {
		t.Fatalf("output contains a self-closing element:\n%s", text)
	}
	if strings.ContainsRune(text, 0) {
		t.Fatalf("output contains a NUL marker")
	}
	for _, want := range []string{
		`<map id="2"></map>`,
		`<event eventIndex="0"></event>`,
		`<object type="1" x="0" y="0"></object>`,
		`<obj type="8" x="1" y="2" sprite_angle="270"></obj>`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %s", want)
		}
	}
}

func TestEncodeDerivesObjectCount(t *testing.T) {
	lvl := testLevel()
	lvl.Maps[0].Objects = []Object{{Type: 1}, {Type: 2, Nested: &Object{Type: 3}}, {Type: 4}}
	text, err := Encode(lvl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(text, "<num_objects>3</num_objects>") {
		t.Fatalf("num_objects not derived from object list:\n%s", text)
	}
}

func TestDecodeIgnoresStoredObjectCount(t *testing.T) {
	for _, stored := range []string{"0", "1", "99"} {
		t.Run("stored_"+stored, func(t *testing.T) {
			text := strings.Replace(mustEncode(t, twoObjectLevel()), "<num_objects>2</num_objects>",
				"<num_objects>"+stored+"</num_objects>", 1)
			lvl, err := Decode(text)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := len(lvl.Maps[0].Objects); got != 2 {
				t.Fatalf("expected 2 objects, got %d", got)
			}
		})
	}

	t.Run("absent", func(t *testing.T) {
		text := strings.Replace(mustEncode(t, twoObjectLevel()), "<num_objects>2</num_objects>", "", 1)
		_, err := Decode(text)
		var de *DecodeError
		if !errors.As(err, &de) || de.Path != "sfm_map[0]/head/num_objects" || !errors.Is(err, ErrMissingField) {
			t.Fatalf("expected missing num_objects, got %v", err)
		}
	})
}

func TestDecodeProlog(t *testing.T) {
	valid := mustEncode(t, twoObjectLevel())
	cases := map[string]string{
		"declaration":       `<?xml version="1.0" encoding="UTF-8"?>` + "\n" + valid,
		"comments":          "<!-- saved by the editor -->\n" + valid + "\n<!-- end -->",
		"whitespace":        "\n\t  " + valid + "\r\n\n",
		"trailing_procinst": valid + `<?editor cursor="12"?>`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			lvl, err := Decode(text)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !lvl.Equal(twoObjectLevel()) {
				t.Fatalf("unexpected level %+v", lvl)
			}
		})
	}
}

func twoObjectLevel() *Level {
	lvl := testLevel()
	lvl.Maps[0].Objects = []Object{{Type: 5, X: 1, Y: 2}, {Type: 6, X: 3, Y: 4}}
	return lvl
}

func mustEncode(t *testing.T, lvl *Level) string {
	t.Helper()
	text, err := Encode(lvl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return text
}

func TestRotationFidelity(t *testing.T) {
	cases := []struct {
		name     string
		rotation *Rotation
		attr     string
	}{
		{"none", nil, ""},
		{"0", rotationPtr(Rotate0), `sprite_angle="0"`},
		{"90", rotationPtr(Rotate90), `sprite_angle="90"`},
		{"180", rotationPtr(Rotate180), `sprite_angle="180"`},
		{"270", rotationPtr(Rotate270), `sprite_angle="270"`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lvl := testLevel()
			lvl.Maps[0].Objects = []Object{{Type: 1, X: 2, Y: 3, Rotation: c.rotation}}
			text := mustEncode(t, lvl)
			if c.attr == "" && strings.Contains(text, "sprite_angle") {
				t.Fatalf("absent rotation was written:\n%s", text)
			}
			if c.attr != "" && !strings.Contains(text, c.attr) {
				t.Fatalf("expected %s in output:\n%s", c.attr, text)
			}
			got, err := Decode(text)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !equalPtr(got.Maps[0].Objects[0].Rotation, c.rotation) {
				t.Fatalf("rotation mismatch: got %v, want %v", got.Maps[0].Objects[0].Rotation, c.rotation)
			}
		})
	}
}

func TestNestedChainDepth(t *testing.T) {
	for _, depth := range []int{0, 1, 5, 50} {
		t.Run(fmt.Sprintf("depth_%d", depth), func(t *testing.T) {
			root := Object{Type: 100, X: 1, Y: 1}
			cur := &root
			for i := 1; i <= depth; i++ {
				cur.Nested = &Object{
					Type:   uint16(100 + i),
					X:      uint32(i * 10),
					Y:      uint32(i * 20),
					Slot:   uint16Ptr(uint16(i)),
					Params: []Param{NewParam("level", fmt.Sprint(i))},
				}
				cur = cur.Nested
			}
			lvl := testLevel()
			lvl.Maps[0].Objects = []Object{root}

			got, err := Decode(mustEncode(t, lvl))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			obj := &got.Maps[0].Objects[0]
			if obj.Depth() != depth+1 {
				t.Fatalf("expected chain depth %d, got %d", depth+1, obj.Depth())
			}
			if !obj.Equal(&root) {
				t.Fatalf("chain fields differ")
			}
		})
	}
}

func TestEventBranching(t *testing.T) {
	tree := []Event{
		{
			ID:     1,
			Params: []Param{NewParam("a", "1")},
			Children: []Event{
				{ID: 2},
				{ID: 3, Children: []Event{{ID: 4}, {ID: 5}, {ID: 6, Params: []Param{NewParam("deep", "x")}}}},
				{ID: 7, Params: []Param{NewParam("b", "2"), NewParam("c", "3")}},
			},
		},
		{ID: 8},
		{ID: 9, Children: []Event{{ID: 10, Children: []Event{{ID: 11, Children: []Event{{ID: 12}}}}}}},
	}
	lvl := testLevel()
	lvl.Maps[0].Objects = []Object{{Type: 1, Events: tree}}

	got, err := Decode(mustEncode(t, lvl))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(lvl) {
		t.Fatalf("event tree changed: %+v", got.Maps[0].Objects[0].Events)
	}
	if id := got.Maps[0].Objects[0].Events[0].Children[1].Children[2].Params[0].Key; id != "deep" {
		t.Fatalf("param placed at wrong node: %q", id)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := mustEncode(t, twoObjectLevel())

	cases := []struct {
		name   string
		text   string
		target error
		path   string
	}{
		{"empty", "", nil, ""},
		{"malformed", "<sfm_maps><maps_head>", nil, ""},
		{"wrong_root", "<levels></levels>", nil, ""},
		{"missing_head", "<sfm_maps></sfm_maps>", ErrMissingField, "maps_head"},
		{"missing_version", strings.Replace(valid, "<maps_version>103</maps_version>", "", 1), ErrMissingField, "maps_head/maps_version"},
		{"missing_order", strings.Replace(valid, `<submap_order><map id="0"></map></submap_order>`, "", 1), ErrMissingField, "maps_head/submap_order"},
		{"missing_map_id", strings.Replace(valid, `<map id="0">`, `<map>`, 1), ErrMissingField, "maps_head/submap_order/map[0]/@id"},
		{"missing_music", strings.Replace(valid, "<music>60</music>", "", 1), ErrMissingField, "sfm_map[0]/head/music"},
		{"missing_colors", strings.Replace(valid, "<colors>5A0200000600000005</colors>", "", 1), ErrMissingField, "sfm_map[0]/head/colors"},
		{"missing_objects", strings.Replace(strings.Replace(valid, "<objects>", "", 1), "</objects>", "", 1), ErrMissingField, "sfm_map[0]/objects"},
		{"missing_x", strings.Replace(valid, `x="3"`, "", 1), ErrMissingField, "sfm_map[0]/objects/object[1]/@x"},
		{"non_numeric", strings.Replace(valid, `x="3"`, `x="three"`, 1), nil, ""},
		{"out_of_range", strings.Replace(valid, "<maps_version>103</maps_version>", "<maps_version>70000</maps_version>", 1), nil, ""},
		{"negative", strings.Replace(valid, `y="4"`, `y="-4"`, 1), nil, ""},
		{"bad_count", strings.Replace(valid, "<num_objects>2</num_objects>", "<num_objects>two</num_objects>", 1), nil, ""},
		{"bad_rotation", strings.Replace(valid, `x="3"`, `x="3" sprite_angle="45"`, 1), ErrInvalidRotation, ""},
		{"empty_rotation", strings.Replace(valid, `x="3"`, `x="3" sprite_angle=""`, 1), ErrInvalidRotation, ""},
		{"empty_x_attr", strings.Replace(valid, `x="3"`, `x=""`, 1), nil, ""},
		{"padded_x_attr", strings.Replace(valid, `x="3"`, `x=" 3 "`, 1), nil, ""},
		{"plus_sign", strings.Replace(valid, `y="4"`, `y="+4"`, 1), nil, ""},
		{"empty_width", strings.Replace(valid, "<width>1600</width>", "<width></width>", 1), nil, ""},
		{"padded_width", strings.Replace(valid, "<width>1600</width>", "<width>\n1600\n</width>", 1), nil, ""},
		{"empty_count", strings.Replace(valid, "<num_objects>2</num_objects>", "<num_objects></num_objects>", 1), nil, ""},
		{"empty_map_id", strings.Replace(valid, `<map id="0">`, `<map id="">`, 1), nil, ""},
		{"missing_count", strings.Replace(valid, "<num_objects>2</num_objects>", "", 1), ErrMissingField, "sfm_map[0]/head/num_objects"},
		{"trailing_junk", valid + "<<garbage", nil, ""},
		{"second_root", valid + "<sfm_maps>", nil, ""},
		{"trailing_text", valid + "hello", nil, ""},
		{"stray_end", valid + "</sfm_maps>", nil, ""},
		{"leading_text", "hello world" + valid, nil, ""},
		{"only_whitespace", " \n\t", nil, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lvl, err := Decode(c.text)
			if err == nil {
				t.Fatalf("expected error, got level %+v", lvl)
			}
			if lvl != nil {
				t.Fatalf("expected nil level on error")
			}
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("error %v does not wrap ErrDecode", err)
			}
			if errors.Is(err, ErrEncode) {
				t.Fatalf("decode error %v matches ErrEncode", err)
			}
			if c.target != nil && !errors.Is(err, c.target) {
				t.Fatalf("error %v does not wrap %v", err, c.target)
			}
			if c.path != "" {
				var de *DecodeError
				if !errors.As(err, &de) || de.Path != c.path {
					t.Fatalf("expected path %q, got %v", c.path, err)
				}
			}
		})
	}
}

func TestDecodeMissingEventAndParamAttrs(t *testing.T) {
	lvl := testLevel()
	lvl.Maps[0].Objects = []Object{{Type: 1, Events: []Event{{ID: 4, Params: []Param{NewParam("k", "v")}}}}}
	valid := mustEncode(t, lvl)

	cases := map[string]string{
		"sfm_map[0]/objects/object[0]/event[0]/@eventIndex":   strings.Replace(valid, ` eventIndex="4"`, "", 1),
		"sfm_map[0]/objects/object[0]/event[0]/param[0]/@val": strings.Replace(valid, ` val="v"`, "", 1),
		"sfm_map[0]/objects/object[0]/event[0]/param[0]/@key": strings.Replace(valid, ` key="k"`, "", 1),
	}
	for path, text := range cases {
		t.Run(path, func(t *testing.T) {
			_, err := Decode(text)
			var de *DecodeError
			if !errors.As(err, &de) || de.Path != path || !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected missing %s, got %v", path, err)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Level)
		path   string
	}{
		{"invalid_rotation", func(l *Level) {
			l.Maps[0].Objects = []Object{{Type: 1}, {Type: 1, Nested: &Object{Rotation: rotationPtr(Rotation(7))}}}
		}, "sfm_map[0]/objects/object[1]/obj/@sprite_angle"},
		{"control_char_in_name", func(l *Level) { l.Head.Name = "bad\x00name" }, "maps_head/maps_name"},
		{"invalid_utf8_in_colors", func(l *Level) { l.Maps[0].Head.Colors = "\xff\xfe" }, "sfm_map[0]/head/colors"},
		{"control_char_in_event_param", func(l *Level) {
			l.Maps[0].Objects = []Object{{Events: []Event{{Children: []Event{{Params: []Param{NewParam("k", "\x01")}}}}}}}
		}, "sfm_map[0]/objects/object[0]/event[0]/event[0]/param[0]/@val"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lvl := testLevel()
			c.mutate(lvl)
			text, err := Encode(lvl)
			if err == nil {
				t.Fatalf("expected error, got %s", text)
			}
			if !errors.Is(err, ErrEncode) || errors.Is(err, ErrDecode) {
				t.Fatalf("unexpected error family: %v", err)
			}
			var ee *EncodeError
			if !errors.As(err, &ee) || ee.Path != c.path {
				t.Fatalf("expected path %q, got %v", c.path, err)
			}
		})
	}

	if _, err := Encode(nil); !errors.Is(err, ErrEncode) {
		t.Fatalf("Encode(nil) = %v, want ErrEncode", err)
	}
}

func TestDecodeDeclared(t *testing.T) {
	lvl, declared, err := DecodeDeclared(mustEncode(t, twoObjectLevel()))
	if err != nil {
		t.Fatalf("DecodeDeclared: %v", err)
	}
	if len(declared) != 1 || declared[0] != 2 || len(lvl.Maps[0].Objects) != 2 {
		t.Fatalf("declared = %v", declared)
	}

	text := strings.Replace(mustEncode(t, twoObjectLevel()), "<num_objects>2</num_objects>", "<num_objects>9</num_objects>", 1)
	if lvl, declared, err = DecodeDeclared(text); err != nil || declared[0] != 9 || len(lvl.Maps[0].Objects) != 2 {
		t.Fatalf("stale count: %v, %v", declared, err)
	}

	data, err := LevelsFS.ReadFile("forest.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, declared, err = DecodeDeclared(string(data)); err != nil || declared[0] != 7 || declared[1] != 0 {
		t.Fatalf("forest declared = %v, %v", declared, err)
	}
}
