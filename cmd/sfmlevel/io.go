package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/milk9111/sfmmaps/levels"
	"github.com/milk9111/sfmmaps/prefabs"
	"github.com/milk9111/sfmmaps/snapshot"
)

const snapshotExt = ".sfms"

// outputPath returns path, or a fresh timestamped name under levels/ when
// path is empty.
func outputPath(path, ext string) string {
	if path != "" {
		return path
	}
	return filepath.Join("levels", fmt.Sprintf("level_%d%s", time.Now().Unix(), ext))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// readLevel loads a level from XML, a YAML/JSON spec or a snapshot,
// chosen by extension.
func readLevel(path string) (*levels.Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == snapshotExt:
		return snapshot.Unpack(data)
	case prefabs.IsLevelFile(path):
		return levels.Decode(string(data))
	}
	format, err := prefabs.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	spec, err := prefabs.ParseLevelSpec(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec.ToLevel()
}

func encodeXML(l *levels.Level) ([]byte, error) {
	var (
		text string
		err  error
	)
	if cfg.Indent != "" {
		text, err = levels.EncodeIndent(l, "", cfg.Indent)
	} else {
		text, err = levels.Encode(l)
	}
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// writeLevel writes l in the format implied by path's extension.
func writeLevel(path string, l *levels.Level) error {
	var (
		data []byte
		err  error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == snapshotExt:
		var p *snapshot.Packer
		if p, err = snapshot.NewPacker(cfg.Snapshot.Level); err == nil {
			data, err = p.Pack(l)
		}
	case prefabs.IsLevelFile(path):
		data, err = encodeXML(l)
	default:
		var format prefabs.Format
		if format, err = prefabs.FormatFromPath(path); err == nil {
			data, err = prefabs.MarshalLevelSpec(prefabs.LevelSpecFrom(l), format)
		}
	}
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func mapAt(l *levels.Level, index int) (*levels.Map, error) {
	if index < 0 || index >= len(l.Maps) {
		return nil, fmt.Errorf("map index %d out of range, level has %d maps", index, len(l.Maps))
	}
	return &l.Maps[index], nil
}
