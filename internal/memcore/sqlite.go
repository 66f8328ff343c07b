package memcore

import (
	"database/sql"
	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/value"
)

//go:embed schema.sql
var schemaSQL string

// sqlStore persists one file to SQLite. Values are stored in the compact
// binary value encoding.
type sqlStore struct {
	db *sql.DB
}

func ioErr(err error) error {
	return nativeErr(CategoryFile, CodeIO, err.Error())
}

func openSQLStore(path string) (*sqlStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, ioErr(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, ioErr(err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, ioErr(err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, ioErr(err)
	}
	return &sqlStore{db: db}, nil
}

func (s *sqlStore) close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// load reads schema and objects into f.
func (s *sqlStore) load(f *file) error {
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE name = 'schema_version'`).Scan(&f.version); err != nil && err != sql.ErrNoRows {
		return ioErr(err)
	}

	rows, err := s.db.Query(`SELECT class_key, name, primary_key, flags, next_key FROM classes ORDER BY class_key`)
	if err != nil {
		return ioErr(err)
	}
	for rows.Next() {
		def := &classDef{}
		var nextKey int64
		if err := rows.Scan(&def.info.Key, &def.info.Name, &def.info.PrimaryKey, &def.info.Flags, &nextKey); err != nil {
			rows.Close()
			return ioErr(err)
		}
		t := newTable()
		t.nextKey = capi.ObjKey(nextKey)
		f.classes = append(f.classes, def)
		f.tables[def.info.Key] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ioErr(err)
	}

	rows, err = s.db.Query(`SELECT class_key, prop_key, name, type, link_target, flags FROM properties ORDER BY class_key, prop_key`)
	if err != nil {
		return ioErr(err)
	}
	for rows.Next() {
		var class capi.ClassKey
		var p capi.PropertyInfo
		if err := rows.Scan(&class, &p.Key, &p.Name, &p.Type, &p.LinkTarget, &p.Flags); err != nil {
			rows.Close()
			return ioErr(err)
		}
		if def, ok := f.class(class); ok {
			def.props = append(def.props, p)
			def.info.NumProperties = len(def.props)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ioErr(err)
	}

	rows, err = s.db.Query(`SELECT class_key, obj_key FROM objects`)
	if err != nil {
		return ioErr(err)
	}
	for rows.Next() {
		var id objID
		if err := rows.Scan(&id.class, &id.key); err != nil {
			rows.Close()
			return ioErr(err)
		}
		if t, ok := f.tables[id.class]; ok {
			t.rows[id.key] = make(row)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ioErr(err)
	}

	rows, err = s.db.Query(`SELECT class_key, obj_key, prop_key, value FROM object_values`)
	if err != nil {
		return ioErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id objID
		var prop capi.PropKey
		var blob []byte
		if err := rows.Scan(&id.class, &id.key, &prop, &blob); err != nil {
			return ioErr(err)
		}
		v, err := value.ParseBinary(blob)
		if err != nil {
			return err
		}
		if t, ok := f.tables[id.class]; ok {
			if r, ok := t.rows[id.key]; ok {
				r[prop] = v
			}
		}
	}
	if err := rows.Err(); err != nil {
		return ioErr(err)
	}

	// properties added after an object was stored read as defaults
	for _, def := range f.classes {
		for _, r := range f.tables[def.info.Key].rows {
			for _, p := range def.props {
				if _, ok := r[p.Key]; !ok {
					r[p.Key] = defaultValue(p)
				}
			}
		}
	}
	return nil
}

// saveSchema writes the given class definitions and the schema version.
func (s *sqlStore) saveSchema(f *file, defs []*classDef) error {
	tx, err := s.db.Begin()
	if err != nil {
		return ioErr(err)
	}
	defer tx.Rollback()

	for _, def := range defs {
		if _, err := tx.Exec(`INSERT INTO classes (class_key, name, primary_key, flags) VALUES (?, ?, ?, ?)
			ON CONFLICT(class_key) DO NOTHING`,
			def.info.Key, def.info.Name, def.info.PrimaryKey, def.info.Flags); err != nil {
			return ioErr(err)
		}
		for _, p := range def.props {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO properties (class_key, prop_key, name, type, link_target, flags)
				VALUES (?, ?, ?, ?, ?, ?)`,
				def.info.Key, p.Key, p.Name, p.Type, p.LinkTarget, p.Flags); err != nil {
				return ioErr(err)
			}
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta (name, value) VALUES ('schema_version', ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, f.version); err != nil {
		return ioErr(err)
	}
	if err := tx.Commit(); err != nil {
		return ioErr(err)
	}
	return nil
}

// commit writes what tx touched. It runs before the in-memory commit is
// published, so a failed write leaves the transaction open.
func (s *sqlStore) commit(f *file, tx *txn) error {
	sqlTx, err := s.db.Begin()
	if err != nil {
		return ioErr(err)
	}
	defer sqlTx.Rollback()

	for id := range tx.deleted {
		if _, err := sqlTx.Exec(`DELETE FROM object_values WHERE class_key = ? AND obj_key = ?`, id.class, id.key); err != nil {
			return ioErr(err)
		}
		if _, err := sqlTx.Exec(`DELETE FROM objects WHERE class_key = ? AND obj_key = ?`, id.class, id.key); err != nil {
			return ioErr(err)
		}
	}

	write := func(id objID, prop capi.PropKey, v value.Value) error {
		blob, err := value.AppendBinary(nil, v)
		if err != nil {
			return err
		}
		_, err = sqlTx.Exec(`INSERT INTO object_values (class_key, obj_key, prop_key, value) VALUES (?, ?, ?, ?)
			ON CONFLICT(class_key, obj_key, prop_key) DO UPDATE SET value = excluded.value`,
			id.class, id.key, prop, blob)
		if err != nil {
			return ioErr(err)
		}
		return nil
	}

	for id := range tx.created {
		r, ok := f.tables[id.class].rows[id.key]
		if !ok {
			continue
		}
		if _, err := sqlTx.Exec(`INSERT OR IGNORE INTO objects (class_key, obj_key) VALUES (?, ?)`, id.class, id.key); err != nil {
			return ioErr(err)
		}
		for prop, v := range r {
			if err := write(id, prop, v); err != nil {
				return err
			}
		}
	}
	for id, props := range tx.modified {
		r, ok := f.tables[id.class].rows[id.key]
		if !ok || tx.created[id] {
			continue
		}
		for prop := range props {
			if err := write(id, prop, r[prop]); err != nil {
				return err
			}
		}
	}

	for key, t := range f.tables {
		if _, err := sqlTx.Exec(`UPDATE classes SET next_key = ? WHERE class_key = ?`, t.nextKey, key); err != nil {
			return ioErr(err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return ioErr(err)
	}
	return nil
}
