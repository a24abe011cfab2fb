package nwb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	_ "modernc.org/sqlite"
)

// Encoder persists a container at path.
type Encoder interface {
	Encode(ctx context.Context, c *Container, path string) error
}

// containerSchemaVersion is stored in PRAGMA user_version.
const containerSchemaVersion = 1

var containerSchema = []string{
	`CREATE TABLE nwb_groups (
		path     TEXT PRIMARY KEY,
		parent   TEXT,
		name     TEXT NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE TABLE nwb_attributes (
		owner    TEXT NOT NULL,
		name     TEXT NOT NULL,
		dtype    TEXT NOT NULL,
		value    TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (owner, name)
	)`,
	`CREATE TABLE nwb_datasets (
		path       TEXT PRIMARY KEY,
		group_path TEXT NOT NULL REFERENCES nwb_groups(path),
		name       TEXT NOT NULL,
		dtype      TEXT NOT NULL,
		length     INTEGER NOT NULL,
		data       BLOB,
		position   INTEGER NOT NULL
	)`,
	fmt.Sprintf("PRAGMA user_version = %d", containerSchemaVersion),
}

// SQLiteEncoder stores the container hierarchy in a single SQLite file.
// Numeric and boolean datasets are little-endian packed; text datasets are
// JSON arrays.
type SQLiteEncoder struct{}

// Encode writes c into a fresh database at dbPath. The file must be empty or
// absent.
func (SQLiteEncoder) Encode(ctx context.Context, c *Container, dbPath string) (err error) {
	if c == nil || c.Root == nil {
		return fmt.Errorf("encode: empty container")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open container database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close container database: %w", closeErr)
		}
	}()
	db.SetMaxOpenConns(1)

	for _, stmt := range containerSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create container schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin container transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = c.Walk(func(groupPath string, g *Group) error {
		var parent any
		if groupPath != "/" {
			parent = path.Dir(groupPath)
		}
		position := childPosition(c, groupPath)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nwb_groups (path, parent, name, position) VALUES (?, ?, ?, ?)`,
			groupPath, parent, g.Name, position); err != nil {
			return fmt.Errorf("insert group %s: %w", groupPath, err)
		}
		if err := insertAttributes(ctx, tx, groupPath, g.Attributes); err != nil {
			return err
		}
		for i, ds := range g.Datasets {
			dsPath := path.Join(groupPath, ds.Name)
			blob, err := packData(ds)
			if err != nil {
				return fmt.Errorf("encode dataset %s: %w", dsPath, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO nwb_datasets (path, group_path, name, dtype, length, data, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				dsPath, groupPath, ds.Name, ds.DType, ds.Len(), blob, i); err != nil {
				return fmt.Errorf("insert dataset %s: %w", dsPath, err)
			}
			if err := insertAttributes(ctx, tx, dsPath, ds.Attributes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit container: %w", err)
	}
	return nil
}

func childPosition(c *Container, groupPath string) int {
	if groupPath == "/" {
		return 0
	}
	parent, ok := c.Lookup(path.Dir(groupPath))
	if !ok {
		return 0
	}
	name := path.Base(groupPath)
	for i, child := range parent.Groups {
		if child.Name == name {
			return i
		}
	}
	return 0
}

func insertAttributes(ctx context.Context, tx *sql.Tx, owner string, attrs []Attribute) error {
	for i, a := range attrs {
		dtype, value, err := encodeAttr(a.Value)
		if err != nil {
			return fmt.Errorf("attribute %s@%s: %w", owner, a.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nwb_attributes (owner, name, dtype, value, position) VALUES (?, ?, ?, ?, ?)`,
			owner, a.Name, dtype, value, i); err != nil {
			return fmt.Errorf("insert attribute %s@%s: %w", owner, a.Name, err)
		}
	}
	return nil
}

func encodeAttr(v any) (string, string, error) {
	switch val := v.(type) {
	case string:
		return DTypeText, val, nil
	case int:
		return DTypeInt64, strconv.Itoa(val), nil
	case int64:
		return DTypeInt64, strconv.FormatInt(val, 10), nil
	case float64:
		return DTypeFloat64, strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return DTypeBool, strconv.FormatBool(val), nil
	default:
		return "", "", fmt.Errorf("unsupported attribute type %T", v)
	}
}

func decodeAttr(dtype, value string) (any, error) {
	switch dtype {
	case DTypeText:
		return value, nil
	case DTypeInt64:
		return strconv.ParseInt(value, 10, 64)
	case DTypeFloat64:
		return strconv.ParseFloat(value, 64)
	case DTypeBool:
		return strconv.ParseBool(value)
	default:
		return nil, fmt.Errorf("unknown attribute dtype %q", dtype)
	}
}

func packData(ds *Dataset) ([]byte, error) {
	if ds.DType == DTypeText {
		return json.Marshal(ds.Data)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, ds.Data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unpackData(dtype string, length int, blob []byte) (any, error) {
	r := bytes.NewReader(blob)
	switch dtype {
	case DTypeText:
		out := []string{}
		if err := json.Unmarshal(blob, &out); err != nil {
			return nil, err
		}
		return out, nil
	case DTypeInt64:
		out := make([]int64, length)
		return out, binary.Read(r, binary.LittleEndian, out)
	case DTypeFloat64:
		out := make([]float64, length)
		return out, binary.Read(r, binary.LittleEndian, out)
	case DTypeBool:
		out := make([]bool, length)
		return out, binary.Read(r, binary.LittleEndian, out)
	default:
		return nil, fmt.Errorf("unknown dataset dtype %q", dtype)
	}
}

// ReadContainer loads a container written by SQLiteEncoder.
func ReadContainer(ctx context.Context, dbPath string) (*Container, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open container database: %w", err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return nil, fmt.Errorf("read container version: %w", err)
	}
	if version != containerSchemaVersion {
		return nil, fmt.Errorf("unsupported container version %d", version)
	}

	groups := map[string]*Group{}
	rows, err := db.QueryContext(ctx, `SELECT path, name FROM nwb_groups ORDER BY length(path) - length(replace(path, '/', '')), parent, position`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	var c Container
	for rows.Next() {
		var groupPath, name string
		if err := rows.Scan(&groupPath, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g := &Group{Name: name}
		groups[groupPath] = g
		if groupPath == "/" {
			c.Root = g
			continue
		}
		parent, ok := groups[path.Dir(groupPath)]
		if !ok {
			rows.Close()
			return nil, fmt.Errorf("group %s has no parent", groupPath)
		}
		parent.Groups = append(parent.Groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	rows.Close()
	if c.Root == nil {
		return nil, fmt.Errorf("container has no root group")
	}

	datasets := map[string]*Dataset{}
	rows, err = db.QueryContext(ctx, `SELECT path, group_path, name, dtype, length, data FROM nwb_datasets ORDER BY group_path, position`)
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	for rows.Next() {
		var dsPath, groupPath, name, dtype string
		var length int
		var blob []byte
		if err := rows.Scan(&dsPath, &groupPath, &name, &dtype, &length, &blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		data, err := unpackData(dtype, length, blob)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode dataset %s: %w", dsPath, err)
		}
		ds := &Dataset{Name: name, DType: dtype, Data: data}
		datasets[dsPath] = ds
		if g, ok := groups[groupPath]; ok {
			g.Datasets = append(g.Datasets, ds)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `SELECT owner, name, dtype, value FROM nwb_attributes ORDER BY owner, position`)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var owner, name, dtype, raw string
		if err := rows.Scan(&owner, &name, &dtype, &raw); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		value, err := decodeAttr(dtype, raw)
		if err != nil {
			return nil, fmt.Errorf("decode attribute %s@%s: %w", owner, name, err)
		}
		attr := Attribute{Name: name, Value: value}
		if g, ok := groups[owner]; ok {
			g.Attributes = append(g.Attributes, attr)
		} else if ds, ok := datasets[owner]; ok {
			ds.Attributes = append(ds.Attributes, attr)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return &c, nil
}
