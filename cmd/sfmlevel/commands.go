package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/milk9111/sfmmaps/catalog"
	"github.com/milk9111/sfmmaps/generate"
	"github.com/milk9111/sfmmaps/levels"
	"github.com/milk9111/sfmmaps/prefabs"
	"github.com/milk9111/sfmmaps/preview"
	"github.com/milk9111/sfmmaps/snapshot"
	log "github.com/sirupsen/logrus"
)

type filesArgs struct {
	Files []string `positional-arg-name:"FILE" required:"1"`
}

type inOutArgs struct {
	In  string `positional-arg-name:"IN" required:"yes"`
	Out string `positional-arg-name:"OUT"`
}

type checkCmd struct {
	Args filesArgs `positional-args:"yes"`
}

func (c *checkCmd) Execute([]string) error {
	failed := 0
	for _, path := range c.Args.Files {
		entry := log.WithField("file", path)
		data, err := os.ReadFile(path)
		if err != nil {
			entry.WithError(err).Error("read failed")
			failed++
			continue
		}
		lvl, declared, err := levels.DecodeDeclared(string(data))
		if err != nil {
			entry.WithError(err).Error("decode failed")
			failed++
			continue
		}
		entry.WithFields(log.Fields{
			"name":    lvl.Head.Name,
			"maps":    len(lvl.Maps),
			"objects": lvl.CountObjects(),
		}).Info("ok")
		for i := range lvl.Maps {
			if n := uint32(len(lvl.Maps[i].Objects)); declared[i] != n {
				entry.WithFields(log.Fields{
					"map":      i,
					"declared": declared[i],
					"actual":   n,
				}).Warn("num_objects does not match object list")
			}
		}
		fmt.Fprintf(stdout, "%s\t%s\tmaps=%d\tobjects=%d\n", path, lvl.Head.Name, len(lvl.Maps), lvl.CountObjects())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(c.Args.Files))
	}
	return nil
}

type fmtCmd struct {
	Write bool `short:"w" long:"write" description:"Rewrite the file in place"`
	Args  struct {
		File string `positional-arg-name:"FILE" required:"yes"`
	} `positional-args:"yes"`
}

func (c *fmtCmd) Execute([]string) error {
	lvl, err := readLevel(c.Args.File)
	if err != nil {
		return err
	}
	data, err := encodeXML(lvl)
	if err != nil {
		return err
	}
	if !c.Write {
		_, err = stdout.Write(data)
		return err
	}
	if !prefabs.IsLevelFile(c.Args.File) {
		return fmt.Errorf("fmt -w only rewrites .xml files, got %s", c.Args.File)
	}
	return writeFile(c.Args.File, data)
}

type newCmd struct {
	Name string `short:"n" long:"name" required:"true" description:"Level and map name"`
	Out  string `short:"o" long:"output" description:"Output file (default levels/level_<unix>.xml)"`
}

func (c *newCmd) Execute([]string) error {
	lvl, err := prefabs.GenericLevel(c.Name)
	if err != nil {
		return err
	}
	out := outputPath(c.Out, ".xml")
	if err := writeLevel(out, lvl); err != nil {
		return err
	}
	log.WithField("file", out).Info("level created")
	return nil
}

type convertCmd struct {
	To   string    `long:"to" required:"true" choice:"xml" choice:"yaml" choice:"json" choice:"jsonc" description:"Output format"`
	Args inOutArgs `positional-args:"yes"`
}

func (c *convertCmd) Execute([]string) error {
	lvl, err := readLevel(c.Args.In)
	if err != nil {
		return err
	}
	out := c.Args.Out
	if out == "" {
		base := strings.TrimSuffix(c.Args.In, filepath.Ext(c.Args.In))
		out = base + "." + c.To
		if out == c.Args.In {
			return fmt.Errorf("%s is already %s", c.Args.In, c.To)
		}
	}
	if err := writeLevel(out, lvl); err != nil {
		return err
	}
	log.WithFields(log.Fields{"from": c.Args.In, "to": out}).Info("converted")
	return nil
}

type packCmd struct {
	Args inOutArgs `positional-args:"yes"`
}

func (c *packCmd) Execute([]string) error {
	lvl, err := readLevel(c.Args.In)
	if err != nil {
		return err
	}
	out := c.Args.Out
	if out == "" {
		out = strings.TrimSuffix(c.Args.In, filepath.Ext(c.Args.In)) + snapshotExt
	}
	if filepath.Ext(out) != snapshotExt {
		return fmt.Errorf("snapshot output must end in %s", snapshotExt)
	}
	return writeLevel(out, lvl)
}

type unpackCmd struct {
	Args inOutArgs `positional-args:"yes"`
}

func (c *unpackCmd) Execute([]string) error {
	data, err := os.ReadFile(c.Args.In)
	if err != nil {
		return err
	}
	lvl, err := snapshot.Unpack(data)
	if err != nil {
		return err
	}
	return writeLevel(outputPath(c.Args.Out, ".xml"), lvl)
}

type fingerprintCmd struct {
	Args filesArgs `positional-args:"yes"`
}

func (c *fingerprintCmd) Execute([]string) error {
	for _, path := range c.Args.Files {
		lvl, err := readLevel(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		h, err := snapshot.Fingerprint(lvl)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(stdout, "%s  %s\n", h, path)
	}
	return nil
}

type previewCmd struct {
	Map     int       `short:"m" long:"map" default:"0" description:"Map index"`
	NoLabel bool      `long:"no-label" description:"Do not draw the map name"`
	Args    inOutArgs `positional-args:"yes"`
}

func (c *previewCmd) Execute([]string) error {
	lvl, err := readLevel(c.Args.In)
	if err != nil {
		return err
	}
	m, err := mapAt(lvl, c.Map)
	if err != nil {
		return err
	}
	o := preview.DefaultOptions()
	o.Scale = cfg.Preview.Scale
	o.MarkerSize = cfg.Preview.MarkerSize
	o.MaxWidth = cfg.Preview.MaxWidth
	o.MaxHeight = cfg.Preview.MaxHeight
	o.Label = !c.NoLabel

	out := outputPath(c.Args.Out, ".png")
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := preview.WritePNG(f, preview.Render(m, o)); err != nil {
		return err
	}
	return f.Close()
}

type DBOption struct {
	DB string `long:"db" description:"Catalog database (default from config)"`
}

func (d DBOption) open() (*catalog.Catalog, error) {
	path := d.DB
	if path == "" {
		path = cfg.Catalog.Path
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	return catalog.Open(ctx, path)
}

type indexCmd struct {
	DBOption
	Args filesArgs `positional-args:"yes"`
}

func (c *indexCmd) Execute([]string) error {
	cat, err := c.open()
	if err != nil {
		return err
	}
	defer cat.Close()

	var errs []error
	for _, path := range c.Args.Files {
		lvl, err := readLevel(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		changed, err := cat.Index(ctx, filepath.ToSlash(filepath.Clean(path)), lvl)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.WithFields(log.Fields{"file": path, "changed": changed}).Info("indexed")
	}
	return errors.Join(errs...)
}

type findCmd struct {
	DBOption
	Type  *uint16 `short:"t" long:"type" description:"Object type id"`
	Level string  `short:"l" long:"level" description:"Indexed level name"`
	Param string  `short:"p" long:"param" description:"Only objects carrying this param key"`
	Limit int     `long:"limit" default:"0" description:"Maximum rows, 0 for all"`
}

func (c *findCmd) Execute([]string) error {
	cat, err := c.open()
	if err != nil {
		return err
	}
	defer cat.Close()

	rows, err := cat.FindObjects(ctx, catalog.ObjectQuery{
		Level:    c.Level,
		Type:     c.Type,
		ParamKey: c.Param,
		Limit:    c.Limit,
	})
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Fprintf(stdout, "%s\tmap=%d\tobj=%d\tdepth=%d\ttype=%d\tx=%d\ty=%d\n",
			r.Level, r.Submap, r.Ordinal, r.Depth, r.Type, r.X, r.Y)
	}
	log.WithField("rows", len(rows)).Debug("find done")
	return nil
}

type generateCmd struct {
	Script string    `short:"s" long:"script" required:"true" description:"Script file or embedded script name"`
	Map    int       `short:"m" long:"map" default:"0" description:"Map index"`
	Seed   int64     `long:"seed" default:"0" description:"Value of the script's seed global"`
	Args   inOutArgs `positional-args:"yes"`
}

func (c *generateCmd) Execute([]string) error {
	lvl, err := readLevel(c.Args.In)
	if err != nil {
		return err
	}
	m, err := mapAt(lvl, c.Map)
	if err != nil {
		return err
	}
	before := len(m.Objects)
	o := generate.Options{Seed: c.Seed}
	if src, rerr := os.ReadFile(c.Script); rerr == nil {
		err = generate.Run(ctx, src, m, o)
	} else {
		err = generate.RunScript(ctx, c.Script, m, o)
	}
	if err != nil {
		return err
	}

	out := outputPath(c.Args.Out, ".xml")
	if err := writeLevel(out, lvl); err != nil {
		return err
	}
	log.WithFields(log.Fields{"file": out, "placed": len(m.Objects) - before}).Info("generated")
	return nil
}
