package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/elonfeng/stuffplus/pkg/pitch"
)

// Store holds every baseline table loaded for a run. It is read-only once built.
type Store struct {
	tables map[Key]*Table
}

// NewStore indexes tables by key. A later table with the same key replaces an earlier one.
func NewStore(tables ...*Table) *Store {
	s := &Store{tables: make(map[Key]*Table, len(tables))}
	for _, t := range tables {
		s.tables[t.Key] = t
	}
	return s
}

// Table returns the baseline table for a pitch type, axis and handedness.
func (s *Store) Table(t pitch.Type, axis Axis, throws pitch.Handedness) (*Table, error) {
	key := NewKey(t, axis, throws)
	if s != nil {
		if tbl, ok := s.tables[key]; ok {
			return tbl, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", key, ErrMissingReferenceData)
}

// Len returns the number of loaded tables.
func (s *Store) Len() int { return len(s.tables) }

// LoadDir reads every baseline table in dir. Files are named
// <type>_vaa.csv or <type>_haa_<left|right>.csv with a bin,mean header.
// Files that do not follow the naming scheme are skipped.
func LoadDir(dir string) (*Store, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list reference dir %s: %w", dir, err)
	}

	var tables []*Table
	for _, path := range paths {
		key, ok := keyFromFilename(filepath.Base(path))
		if !ok {
			continue
		}
		tbl, err := loadFile(path, key)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tbl)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("reference dir %s: no baseline tables", dir)
	}
	return NewStore(tables...), nil
}

func loadFile(path string, key Key) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference table %s: %w", path, err)
	}
	defer f.Close()

	tbl, err := ReadTable(f, key)
	if err != nil {
		return nil, fmt.Errorf("read reference table %s: %w", path, err)
	}
	return tbl, nil
}

// ReadTable parses a bin,mean CSV into a table.
func ReadTable(r io.Reader, key Key) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	binCol, meanCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "bin", "interval":
			binCol = i
		case "mean":
			meanCol = i
		}
	}
	if binCol < 0 || meanCol < 0 {
		return nil, errors.New("header must contain bin and mean columns")
	}

	var intervals []Interval
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		lower, upper, err := ParseInterval(row[binCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		mean, err := strconv.ParseFloat(strings.TrimSpace(row[meanCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d mean: %w", line, err)
		}
		intervals = append(intervals, Interval{Lower: lower, Upper: upper, Mean: mean})
	}
	return NewTable(key, intervals)
}

func keyFromFilename(name string) (Key, bool) {
	stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	parts := strings.Split(stem, "_")

	var pt pitch.Type
	for _, t := range pitch.AllTypes() {
		if strings.ToLower(string(t)) == parts[0] {
			pt = t
		}
	}
	if pt == "" {
		return Key{}, false
	}

	switch {
	case len(parts) == 2 && parts[1] == string(VAA):
		return NewKey(pt, VAA, ""), true
	case len(parts) == 3 && parts[1] == string(HAA):
		throws, err := pitch.ParseHandedness(parts[2])
		if err != nil {
			return Key{}, false
		}
		return NewKey(pt, HAA, throws), true
	}
	return Key{}, false
}
