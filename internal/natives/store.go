package natives

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"noxy-vm/internal/value"
)

// storeHandle is one open key-value store, backed by a single-table
// sqlite database reached through database/sql's pure-Go driver.
type storeHandle struct {
	db *sql.DB
}

const createKVTable = `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT)`

// storeOpen opens (creating if absent) a sqlite-backed key-value store at
// path and returns an opaque numeric handle for the remaining store_*
// natives.
func (r *Registry) storeOpen(args []value.Value) (value.Value, error) {
	path, err := argString(args, 0)
	if err != nil {
		return value.Value{}, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return value.Value{}, fmt.Errorf("store_open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return value.Value{}, fmt.Errorf("store_open: %w", err)
	}
	if _, err := db.Exec(createKVTable); err != nil {
		db.Close()
		return value.Value{}, fmt.Errorf("store_open: %w", err)
	}

	id := r.nextHandle
	r.nextHandle++
	r.stores[id] = &storeHandle{db: db}
	return value.NewNumber(float64(id)), nil
}

func (r *Registry) handle(args []value.Value) (*storeHandle, error) {
	n, err := argNumber(args, 0)
	if err != nil {
		return nil, err
	}
	h, ok := r.stores[int(n)]
	if !ok {
		return nil, fmt.Errorf("no open store with handle %v", n)
	}
	return h, nil
}

func (r *Registry) storeSet(args []value.Value) (value.Value, error) {
	h, err := r.handle(args)
	if err != nil {
		return value.Value{}, err
	}
	key, err := argString(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	if len(args) < 3 {
		return value.Value{}, fmt.Errorf("expected at least 3 arguments.")
	}

	_, err = h.db.Exec(
		`INSERT INTO kv(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, args[2].String(),
	)
	if err != nil {
		return value.Value{}, fmt.Errorf("store_set: %w", err)
	}
	return value.NewBool(true), nil
}

func (r *Registry) storeGet(args []value.Value) (value.Value, error) {
	h, err := r.handle(args)
	if err != nil {
		return value.Value{}, err
	}
	key, err := argString(args, 1)
	if err != nil {
		return value.Value{}, err
	}

	var stored string
	err = h.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&stored)
	if err == sql.ErrNoRows {
		return value.NewNil(), nil
	}
	if err != nil {
		return value.Value{}, fmt.Errorf("store_get: %w", err)
	}
	return r.heap.NewString(stored), nil
}

func (r *Registry) storeClose(args []value.Value) (value.Value, error) {
	n, err := argNumber(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	id := int(n)
	if h, ok := r.stores[id]; ok {
		h.db.Close()
		delete(r.stores, id)
	}
	return value.NewNil(), nil
}
