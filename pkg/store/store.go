// Package store adapts the relational backing store (sqlite or mysql) into
// the four operations the core needs: loading plates, metadata, and flows,
// and applying batched metadata value updates transactionally.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/nenet-io/nenet-core/pkg/nerr"
)

// Plate mirrors an ne_plate row.
type Plate struct {
	PKID          int
	PlateTypeID   int
	PlateParentID int
	StationName   string
	IPAddr        string
	IPPort        int
	LoginName     string
	LoginPassword string
	HardAddr      int
}

// MetaInfo mirrors an ne_md_info row.
type MetaInfo struct {
	PKID            int
	PlateTypeID     int
	PlateControlID  int
	PlateID         int
	PlateHardAddr   int
	Tport           int
	InitValue       int
	CurrentValue    int
	KindID          int
	CurrentValueStr string
	Name            string
	Type            string
	Unit            string
	Min             int
	Max             int
}

// Metadata value kinds (ne_md_info.kind_id).
const (
	KindDO     = 1
	KindAnalog = 2
	KindString = 3
)

// Flow mirrors an ne_flow_info row.
type Flow struct {
	PKID     int
	FlowName string
	FlowType string
	PlateID  int
}

// ValueUpdate is one (metadata id, new value) pair applied by UpdateMetaValues.
type ValueUpdate struct {
	MDID  int
	Value int
}

// Store is the persistent-store adapter contract (§4.B).
type Store interface {
	LoadPlates() ([]Plate, error)
	LoadMeta() ([]MetaInfo, error)
	LoadFlows() ([]Flow, error)
	UpdateMetaValues(updates []ValueUpdate) error
	Close() error
}

// sqlStore implements Store atop database/sql, working against either the
// sqlite or mysql driver depending on how it was opened.
type sqlStore struct {
	db *sql.DB
}

// Open opens the store for the given backend. dbType is one of
// "sqlite"/"1" or "mysql"/"2" (§6, §4.H); dsn is the driver-specific
// connection string (a file path for sqlite, a DSN for mysql).
func Open(dbType, dsn string) (Store, error) {
	var driver string
	switch dbType {
	case "sqlite", "1":
		driver = "sqlite"
	case "mysql", "2":
		driver = "mysql"
	default:
		return nil, &nerr.ConfigError{Section: "DATABASE", Details: fmt.Sprintf("unknown database type %q", dbType)}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &nerr.StoreError{Op: "open", Table: "", Details: err.Error()}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &nerr.StoreError{Op: "ping", Table: "", Details: err.Error()}
	}
	return &sqlStore{db: db}, nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) LoadPlates() ([]Plate, error) {
	rows, err := s.db.Query(`SELECT pk_id, plate_type_id, plate_parent_id, station_name,
		ip_addr, ip_port, login_name, login_password, hard_addr FROM ne_plate_type`)
	if err != nil {
		return nil, &nerr.StoreError{Op: "select", Table: "ne_plate_type", Details: err.Error()}
	}
	defer rows.Close()

	var plates []Plate
	for rows.Next() {
		var p Plate
		if err := rows.Scan(&p.PKID, &p.PlateTypeID, &p.PlateParentID, &p.StationName,
			&p.IPAddr, &p.IPPort, &p.LoginName, &p.LoginPassword, &p.HardAddr); err != nil {
			return nil, &nerr.StoreError{Op: "scan", Table: "ne_plate_type", Details: err.Error()}
		}
		plates = append(plates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &nerr.StoreError{Op: "iterate", Table: "ne_plate_type", Details: err.Error()}
	}
	return plates, nil
}

// LoadMeta loads every metadata row. current_value_str may be stored under
// either "curValue_str" or "current_value_str" (§4.B); the column set is
// inspected so either schema variant is accepted.
func (s *sqlStore) LoadMeta() ([]MetaInfo, error) {
	col, err := s.currentValueStrColumn()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT pk_id, plate_type_id, plate_control_id, plate_id,
		plate_hard_addr, tport, init_value, current_value, kind_id, %s,
		name, type, unit, min_value, max_value FROM ne_md_info`, col)
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, &nerr.StoreError{Op: "select", Table: "ne_md_info", Details: err.Error()}
	}
	defer rows.Close()

	var metas []MetaInfo
	for rows.Next() {
		var m MetaInfo
		var curStr sql.NullString
		if err := rows.Scan(&m.PKID, &m.PlateTypeID, &m.PlateControlID, &m.PlateID,
			&m.PlateHardAddr, &m.Tport, &m.InitValue, &m.CurrentValue, &m.KindID, &curStr,
			&m.Name, &m.Type, &m.Unit, &m.Min, &m.Max); err != nil {
			return nil, &nerr.StoreError{Op: "scan", Table: "ne_md_info", Details: err.Error()}
		}
		m.CurrentValueStr = curStr.String
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &nerr.StoreError{Op: "iterate", Table: "ne_md_info", Details: err.Error()}
	}
	return metas, nil
}

// currentValueStrColumn inspects ne_md_info's columns and returns whichever
// of the two accepted spellings is actually present.
func (s *sqlStore) currentValueStrColumn() (string, error) {
	rows, err := s.db.Query(`SELECT * FROM ne_md_info LIMIT 0`)
	if err != nil {
		return "", &nerr.StoreError{Op: "probe-columns", Table: "ne_md_info", Details: err.Error()}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", &nerr.StoreError{Op: "columns", Table: "ne_md_info", Details: err.Error()}
	}
	for _, c := range cols {
		if c == "current_value_str" {
			return "current_value_str", nil
		}
	}
	for _, c := range cols {
		if c == "curValue_str" {
			return "curValue_str", nil
		}
	}
	return "", &nerr.StoreError{Op: "columns", Table: "ne_md_info", Details: "neither current_value_str nor curValue_str present"}
}

func (s *sqlStore) LoadFlows() ([]Flow, error) {
	rows, err := s.db.Query(`SELECT pk_id, flow_name, flow_type, plate_id FROM ne_flow_info`)
	if err != nil {
		return nil, &nerr.StoreError{Op: "select", Table: "ne_flow_info", Details: err.Error()}
	}
	defer rows.Close()

	var flows []Flow
	for rows.Next() {
		var f Flow
		if err := rows.Scan(&f.PKID, &f.FlowName, &f.FlowType, &f.PlateID); err != nil {
			return nil, &nerr.StoreError{Op: "scan", Table: "ne_flow_info", Details: err.Error()}
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, &nerr.StoreError{Op: "iterate", Table: "ne_flow_info", Details: err.Error()}
	}
	return flows, nil
}

// UpdateMetaValues applies every update inside one transaction. Any per-row
// failure rolls back the whole batch (§4.B, §8 invariant).
func (s *sqlStore) UpdateMetaValues(updates []ValueUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &nerr.StoreError{Op: "begin", Table: "ne_md_info", Details: err.Error()}
	}

	stmt, err := tx.Prepare(`UPDATE ne_md_info SET current_value = ? WHERE pk_id = ?`)
	if err != nil {
		tx.Rollback()
		return &nerr.StoreError{Op: "prepare", Table: "ne_md_info", Details: err.Error()}
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.Exec(u.Value, u.MDID); err != nil {
			tx.Rollback()
			return &nerr.StoreError{Op: "update", Table: "ne_md_info", Details: err.Error()}
		}
	}

	if err := tx.Commit(); err != nil {
		return &nerr.StoreError{Op: "commit", Table: "ne_md_info", Details: err.Error()}
	}
	return nil
}
