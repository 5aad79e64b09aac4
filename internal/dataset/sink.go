package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// Path is the sink location of a table inside dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".csv")
}

// WriteFile replaces dir/<name>.csv with the table. The content goes to a
// temporary file in the same directory first, so a failed write leaves the
// previous file in place.
func WriteFile(dir string, t *Table) (string, error) {
	path := Path(dir, t.Name)
	err := writeAtomic(path, t.WriteCSV)
	return path, err
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Load reads a sink written by WriteFile, detecting column types.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	df := dataframe.ReadCSV(f, dataframe.HasHeader(true), dataframe.DetectTypes(true))
	if df.Err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, df.Err)
	}
	return &Table{Name: name, Frame: df}, nil
}

// WriteWorkbook stores every table as a sheet of one xlsx file, replacing
// path atomically. Numeric cells are written as numbers.
func WriteWorkbook(path string, tables []*Table) error {
	if len(tables) == 0 {
		return nil
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := t.Name
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("naming sheet %s: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("adding sheet %s: %w", sheet, err)
		}
		if err := fillSheet(f, sheet, t); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	return writeAtomic(path, func(w io.Writer) error {
		return f.Write(w)
	})
}

func fillSheet(f *excelize.File, sheet string, t *Table) error {
	names := t.Frame.Names()
	for c, name := range names {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("%s header: %w", sheet, err)
		}
	}
	for c, name := range names {
		col := t.Frame.Col(name)
		_, typed := t.Widths[name]
		numeric := typed || col.Type() == series.Int || col.Type() == series.Float
		for r, v := range col.Records() {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var val any = v
			if numeric {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					val = n
				} else if n, err := strconv.ParseFloat(v, 64); err == nil {
					val = n
				}
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("%s %s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
