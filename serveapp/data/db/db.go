package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config DBconn config
type Config struct {
	DriverName string
	ConnInfo   string

	ImageTable      string
	PredictionTable string
}

// DBconn db 연결정보
type DBconn struct {
	DriverName string
	ConnInfo   string

	ImageTable      string
	PredictionTable string

	db *sql.DB
}

// Item 학습용 이미지 항목
type Item struct {
	Label       string    `json:"label"`
	OrgFilename string    `json:"orgFilename"`
	Filename    string    `json:"filename"`
	FileFormat  string    `json:"format"`
	FilePath    string    `json:"path"`
	CreateAt    time.Time `json:"createAt"`
}

// Prediction 추론 기록 항목
type Prediction struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	CreateAt   time.Time `json:"createAt"`
}

func (conn *DBconn) createTables() error {
	if !conn.existsTable(conn.ImageTable) {
		slog.Info("Create DB table", "table", conn.ImageTable)
		if _, err := conn.db.Exec(fmt.Sprintf(`CREATE TABLE %s (
		label VARCHAR(80) NOT NULL,
		orgfilename VARCHAR(255) NOT NULL,
		filename VARCHAR(255) NOT NULL,
		format CHAR(10) NOT NULL,
		path VARCHAR(512) NOT NULL,
		createAt DATETIME NOT NULL);`, conn.ImageTable)); err != nil {
			return err
		}
	}

	if !conn.existsTable(conn.PredictionTable) {
		slog.Info("Create DB table", "table", conn.PredictionTable)
		if _, err := conn.db.Exec(fmt.Sprintf(`CREATE TABLE %s (
		id CHAR(36) NOT NULL PRIMARY KEY,
		filename VARCHAR(255) NOT NULL,
		label VARCHAR(80) NOT NULL,
		confidence DOUBLE NOT NULL,
		createAt DATETIME NOT NULL);`, conn.PredictionTable)); err != nil {
			return err
		}
	}

	return nil
}

func (conn *DBconn) existsTable(table string) bool {
	var one int
	err := conn.db.QueryRow(fmt.Sprintf("SELECT 1 FROM %s LIMIT 1;", table)).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false
	}

	return true
}

func whereItem(param Item) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if param.Label != "" {
		conds = append(conds, "label = ?")
		args = append(args, param.Label)
	}
	if param.Filename != "" {
		conds = append(conds, "filename = ?")
		args = append(args, param.Filename)
	}
	if param.OrgFilename != "" {
		conds = append(conds, "orgfilename = ?")
		args = append(args, param.OrgFilename)
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// InsertImage 이미지 항목 삽입
func (conn *DBconn) InsertImage(item Item) error {
	_, err := conn.db.Exec(fmt.Sprintf(`INSERT INTO %s (
		label,
		orgfilename,
		filename,
		format,
		path,
		createAt) VALUES (?, ?, ?, ?, ?, ?);`, conn.ImageTable),
		item.Label, item.OrgFilename, item.Filename,
		item.FileFormat, item.FilePath, item.CreateAt,
	)

	return err
}

// GetImages 조건에 맞는 이미지 항목 반환. 빈 필드는 조건에서 제외
func (conn *DBconn) GetImages(param Item) ([]Item, error) {
	where, args := whereItem(param)

	rows, err := conn.db.Query(fmt.Sprintf(
		"SELECT label, orgfilename, filename, format, path, createAt FROM %s%s ORDER BY createAt;",
		conn.ImageTable, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.Label, &item.OrgFilename, &item.Filename,
			&item.FileFormat, &item.FilePath, &item.CreateAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// DeleteImages 조건에 맞는 이미지 항목 삭제
func (conn *DBconn) DeleteImages(param Item) (int64, error) {
	where, args := whereItem(param)

	res, err := conn.db.Exec(fmt.Sprintf("DELETE FROM %s%s;", conn.ImageTable, where), args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// InsertPrediction 추론 기록 삽입
func (conn *DBconn) InsertPrediction(p Prediction) error {
	_, err := conn.db.Exec(fmt.Sprintf(`INSERT INTO %s (
		id,
		filename,
		label,
		confidence,
		createAt) VALUES (?, ?, ?, ?, ?);`, conn.PredictionTable),
		p.ID, p.Filename, p.Label, p.Confidence, p.CreateAt,
	)

	return err
}

// GetPredictions 최근 추론 기록 반환
func (conn *DBconn) GetPredictions(limit int) ([]Prediction, error) {
	rows, err := conn.db.Query(fmt.Sprintf(
		"SELECT id, filename, label, confidence, createAt FROM %s ORDER BY createAt DESC LIMIT ?;",
		conn.PredictionTable), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.ID, &p.Filename, &p.Label, &p.Confidence, &p.CreateAt); err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}

	return predictions, rows.Err()
}

// Destroy db connection 해제
func (conn *DBconn) Destroy() error {
	return conn.db.Close()
}

// normalizeDSN DATETIME 을 time.Time 으로 읽도록 parseTime 설정
func normalizeDSN(driverName, dsn string) (string, error) {
	if driverName != "mysql" {
		return dsn, nil
	}

	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	c.ParseTime = true

	return c.FormatDSN(), nil
}

// New 새로운 db connection 생성
func New(cfg Config) (*DBconn, error) {
	dsn, err := normalizeDSN(cfg.DriverName, cfg.ConnInfo)
	if err != nil {
		return nil, fmt.Errorf("Invalid DSN: %w", err)
	}

	db, err := sql.Open(cfg.DriverName, dsn)
	if err != nil {
		return nil, err
	}

	conn, err := NewWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	return conn, nil
}

// NewWithDB 열린 *sql.DB 로 connection 생성
func NewWithDB(db *sql.DB, cfg Config) (*DBconn, error) {
	conn := &DBconn{
		DriverName:      cfg.DriverName,
		ConnInfo:        cfg.ConnInfo,
		ImageTable:      cfg.ImageTable,
		PredictionTable: cfg.PredictionTable,
		db:              db,
	}

	if err := conn.createTables(); err != nil {
		return nil, err
	}

	return conn, nil
}
