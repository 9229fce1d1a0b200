package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
)

// fakeDB is an in-memory database/sql driver that records inserted incident
// IPs. Inserts for failIP return an error.
type fakeDB struct {
	mu      sync.Mutex
	ips     []string
	commits int
	failIP  string
}

func openFakeDB(failIP string) (*sql.DB, *fakeDB) {
	f := &fakeDB{failIP: failIP}
	return sql.OpenDB(f), f
}

func (f *fakeDB) Connect(context.Context) (driver.Conn, error) { return &fakeConn{db: f}, nil }
func (f *fakeDB) Driver() driver.Driver                        { return fakeDriver{f} }

func (f *fakeDB) inserted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ips...)
}

func (f *fakeDB) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

type fakeDriver struct{ db *fakeDB }

func (d fakeDriver) Open(string) (driver.Conn, error) { return &fakeConn{db: d.db}, nil }

type fakeConn struct {
	db      *fakeDB
	pending []string
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return &fakeStmt{conn: c}, nil }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return &fakeTx{conn: c}, nil }

type fakeTx struct{ conn *fakeConn }

func (tx *fakeTx) Commit() error {
	db := tx.conn.db
	db.mu.Lock()
	defer db.mu.Unlock()
	db.ips = append(db.ips, tx.conn.pending...)
	db.commits++
	tx.conn.pending = nil
	return nil
}

func (tx *fakeTx) Rollback() error {
	tx.conn.pending = nil
	return nil
}

type fakeStmt struct{ conn *fakeConn }

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	ip, _ := args[1].(string)
	if ip == s.conn.db.failIP {
		return nil, errors.New("insert rejected")
	}
	s.conn.pending = append(s.conn.pending, ip)
	return driver.RowsAffected(1), nil
}

func (s *fakeStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("not supported")
}
