package hidelist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store 是 sqlite 持久化的隐藏目标清单。
// 监控器启动前由监督路径 Load 一次；运行中的增删只落库，
// 不回写监控器的内存集合。
type Store struct {
	db *sql.DB
}

// OpenStore 打开（必要时创建）隐藏清单数据库
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("hidelist: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("hidelist: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("hidelist: enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("hidelist: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hide_targets (
		package_name TEXT NOT NULL,
		process_name TEXT NOT NULL,
		PRIMARY KEY (package_name, process_name)
	)`
	_, err := db.Exec(schema)
	return err
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Load 读出全部隐藏目标
func (s *Store) Load() ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT package_name, process_name FROM hide_targets ORDER BY package_name, process_name")
	if err != nil {
		return nil, fmt.Errorf("hidelist: query targets: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Package, &e.Process); err != nil {
			return nil, fmt.Errorf("hidelist: scan target: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Add 插入一个隐藏目标，已存在时保持不变
func (s *Store) Add(e Entry) error {
	if e.Package == "" || e.Process == "" {
		return fmt.Errorf("hidelist: empty package or process name")
	}
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO hide_targets (package_name, process_name) VALUES (?, ?)",
		e.Package, e.Process)
	if err != nil {
		return fmt.Errorf("hidelist: add target: %w", err)
	}
	return nil
}

// Remove 删除一个隐藏目标；process 为空时删除该包的全部条目
func (s *Store) Remove(e Entry) error {
	var err error
	if e.Process == "" {
		_, err = s.db.Exec("DELETE FROM hide_targets WHERE package_name = ?", e.Package)
	} else {
		_, err = s.db.Exec(
			"DELETE FROM hide_targets WHERE package_name = ? AND process_name = ?",
			e.Package, e.Process)
	}
	if err != nil {
		return fmt.Errorf("hidelist: remove target: %w", err)
	}
	return nil
}
