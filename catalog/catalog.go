// Package catalog indexes levels into SQLite so tools can search object
// placements across many files.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/milk9111/sfmmaps/levels"
	"github.com/milk9111/sfmmaps/snapshot"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`create table if not exists level (
		name        text primary key,
		title       text not null,
		version     integer not null,
		maps        integer not null,
		objects     integer not null,
		fingerprint text not null
	)`,
	`create table if not exists submap (
		level   text not null references level(name) on delete cascade,
		idx     integer not null,
		name    text not null,
		width   integer not null,
		height  integer not null,
		tileset integer not null,
		music   integer not null,
		primary key (level, idx)
	)`,
	`create table if not exists object (
		id       integer primary key autoincrement,
		level    text not null references level(name) on delete cascade,
		submap   integer not null,
		ordinal  integer not null,
		depth    integer not null,
		type     integer not null,
		x        integer not null,
		y        integer not null,
		slot     integer,
		rotation integer
	)`,
	`create index if not exists object_type on object (type)`,
	`create index if not exists object_level on object (level, submap, ordinal, depth)`,
	`create table if not exists param (
		object_id integer not null references object(id) on delete cascade,
		pkey      text not null,
		pvalue    text not null
	)`,
	`create index if not exists param_key on param (pkey)`,
}

type Catalog struct {
	db *sqlx.DB
}

// LevelInfo summarizes one indexed level.
type LevelInfo struct {
	Name        string `db:"name"`
	Title       string `db:"title"`
	Version     uint16 `db:"version"`
	Maps        int    `db:"maps"`
	Objects     int    `db:"objects"`
	Fingerprint string `db:"fingerprint"`
}

// Placement is one object row. Depth 0 is a top-level object; deeper rows
// are members of its nested chain.
type Placement struct {
	Level    string  `db:"level"`
	Submap   int     `db:"submap"`
	Ordinal  int     `db:"ordinal"`
	Depth    int     `db:"depth"`
	Type     uint16  `db:"type"`
	X        uint32  `db:"x"`
	Y        uint32  `db:"y"`
	Slot     *uint16 `db:"slot"`
	Rotation *int    `db:"rotation"`
}

type ObjectQuery struct {
	Level    string
	Type     *uint16
	ParamKey string
	Limit    int
}

type submapRow struct {
	Level   string `db:"level"`
	Idx     int    `db:"idx"`
	Name    string `db:"name"`
	Width   uint16 `db:"width"`
	Height  uint16 `db:"height"`
	Tileset uint16 `db:"tileset"`
	Music   uint16 `db:"music"`
}

// Open opens or creates the catalog at path. ":memory:" gives a private
// in-memory catalog.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" catalogs coherent and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("catalog: migrate: %w", err)
		}
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Index replaces everything stored under name with l. It reports false
// when the stored fingerprint already matches and nothing was written.
func (c *Catalog) Index(ctx context.Context, name string, l *levels.Level) (bool, error) {
	if l == nil {
		return false, errors.New("catalog: nil level")
	}
	fp, err := snapshot.Fingerprint(l)
	if err != nil {
		return false, fmt.Errorf("catalog: %s: %w", name, err)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.GetContext(ctx, &stored, `select fingerprint from level where name = ?`, name)
	switch {
	case err == nil && stored == fp.String():
		return false, tx.Commit()
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("catalog: %s: %w", name, err)
	}

	if err := deleteLevel(ctx, tx, name); err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`insert into level (name, title, version, maps, objects, fingerprint) values (?, ?, ?, ?, ?, ?)`,
		name, l.Head.Name, l.Head.Version, len(l.Maps), l.CountObjects(), fp.String())
	if err != nil {
		return false, fmt.Errorf("catalog: insert level %s: %w", name, err)
	}

	for i := range l.Maps {
		m := &l.Maps[i]
		row := submapRow{
			Level:   name,
			Idx:     i,
			Name:    m.Head.Name,
			Width:   m.Head.Width,
			Height:  m.Head.Height,
			Tileset: m.Head.Tileset,
			Music:   m.Head.Music,
		}
		_, err := tx.NamedExecContext(ctx,
			`insert into submap (level, idx, name, width, height, tileset, music)
			 values (:level, :idx, :name, :width, :height, :tileset, :music)`, row)
		if err != nil {
			return false, fmt.Errorf("catalog: insert submap %s/%d: %w", name, i, err)
		}
		for j := range m.Objects {
			if err := insertChain(ctx, tx, name, i, j, &m.Objects[j]); err != nil {
				return false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("catalog: commit %s: %w", name, err)
	}
	return true, nil
}

func insertChain(ctx context.Context, tx *sqlx.Tx, name string, submap, ordinal int, root *levels.Object) error {
	depth := 0
	for o := root; o != nil; o = o.Nested {
		var rotation *int
		if o.Rotation != nil {
			deg := o.Rotation.Degrees()
			rotation = &deg
		}
		res, err := tx.ExecContext(ctx,
			`insert into object (level, submap, ordinal, depth, type, x, y, slot, rotation) values (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			name, submap, ordinal, depth, o.Type, o.X, o.Y, o.Slot, rotation)
		if err != nil {
			return fmt.Errorf("catalog: insert object %s/%d/%d: %w", name, submap, ordinal, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("catalog: object id: %w", err)
		}
		for _, p := range o.Params {
			if _, err := tx.ExecContext(ctx, `insert into param (object_id, pkey, pvalue) values (?, ?, ?)`, id, p.Key, p.Value); err != nil {
				return fmt.Errorf("catalog: insert param: %w", err)
			}
		}
		depth++
	}
	return nil
}

func deleteLevel(ctx context.Context, tx *sqlx.Tx, name string) error {
	stmts := []string{
		`delete from param where object_id in (select id from object where level = ?)`,
		`delete from object where level = ?`,
		`delete from submap where level = ?`,
		`delete from level where name = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return fmt.Errorf("catalog: remove %s: %w", name, err)
		}
	}
	return nil
}

// Remove drops a level from the catalog. Removing an unknown level is not
// an error.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()
	if err := deleteLevel(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Catalog) Levels(ctx context.Context) ([]LevelInfo, error) {
	infos := []LevelInfo{}
	err := c.db.SelectContext(ctx, &infos, `
		select
			name,
			title,
			version,
			maps,
			objects,
			fingerprint
		from
			level
		order by
			name
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list levels: %w", err)
	}
	return infos, nil
}

// FindObjects returns placements matching every set field of q, in level,
// map and document order.
func (c *Catalog) FindObjects(ctx context.Context, q ObjectQuery) ([]Placement, error) {
	var (
		where []string
		args  []any
	)
	if q.Level != "" {
		where = append(where, "o.level = ?")
		args = append(args, q.Level)
	}
	if q.Type != nil {
		where = append(where, "o.type = ?")
		args = append(args, *q.Type)
	}
	if q.ParamKey != "" {
		where = append(where, "exists (select 1 from param p where p.object_id = o.id and p.pkey = ?)")
		args = append(args, q.ParamKey)
	}

	var b strings.Builder
	b.WriteString(`select o.level, o.submap, o.ordinal, o.depth, o.type, o.x, o.y, o.slot, o.rotation from object o`)
	if len(where) > 0 {
		b.WriteString(" where ")
		b.WriteString(strings.Join(where, " and "))
	}
	b.WriteString(" order by o.level, o.submap, o.ordinal, o.depth")
	if q.Limit > 0 {
		b.WriteString(" limit ?")
		args = append(args, q.Limit)
	}

	placements := []Placement{}
	if err := c.db.SelectContext(ctx, &placements, c.db.Rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("catalog: find objects: %w", err)
	}
	return placements, nil
}

// Params returns the params stored for one placement.
func (c *Catalog) Params(ctx context.Context, p Placement) ([]levels.Param, error) {
	var rows []struct {
		Key   string `db:"pkey"`
		Value string `db:"pvalue"`
	}
	err := c.db.SelectContext(ctx, &rows, `
		select p.pkey, p.pvalue
		from param p join object o on o.id = p.object_id
		where o.level = ? and o.submap = ? and o.ordinal = ? and o.depth = ?
		order by p.rowid`, p.Level, p.Submap, p.Ordinal, p.Depth)
	if err != nil {
		return nil, fmt.Errorf("catalog: params: %w", err)
	}
	out := make([]levels.Param, len(rows))
	for i, r := range rows {
		out[i] = levels.NewParam(r.Key, r.Value)
	}
	return out, nil
}
