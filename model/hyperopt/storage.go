package hyperopt

import (
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/xerrors"

	"go-chem.dev/pkg/molnet/model"
)

/*
Storage is an sqlite-backed trial log. Every completed trial is appended
with its parameters and raw (unsigned) primary-metric score, so an
interrupted search can be inspected or resumed later.
*/
type Storage struct {
	db *sql.DB
}

// OpenStorage opens (creating if needed) the trial database at path.
func OpenStorage(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, xerrors.Errorf("open trial storage %s: %w", path, err)
	}
	_, err = db.Exec(`create table if not exists trials (
		id integer primary key autoincrement,
		params text not null,
		score real not null,
		created_at timestamp default current_timestamp)`)
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("init trial storage %s: %w", path, err)
	}
	return &Storage{db: db}, nil
}

// Record appends one completed trial.
func (s *Storage) Record(p model.Params, score float64) error {
	b, err := json.Marshal(p)
	if err != nil {
		return xerrors.Errorf("encode trial params: %w", err)
	}
	if _, err = s.db.Exec(`insert into trials (params, score) values (?, ?)`, string(b), score); err != nil {
		return xerrors.Errorf("record trial: %w", err)
	}
	return nil
}

// Trials returns every recorded trial in insertion order.
func (s *Storage) Trials() ([]Report, error) {
	rows, err := s.db.Query(`select params, score from trials order by id`)
	if err != nil {
		return nil, xerrors.Errorf("read trials: %w", err)
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		var raw string
		var score float64
		if err = rows.Scan(&raw, &score); err != nil {
			return nil, xerrors.Errorf("read trials: %w", err)
		}
		p := model.Params{}
		if err = json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, xerrors.Errorf("decode trial params: %w", err)
		}
		out = append(out, Report{Params: p, Score: score})
	}
	return out, rows.Err()
}

func (s *Storage) Close() error { return s.db.Close() }
