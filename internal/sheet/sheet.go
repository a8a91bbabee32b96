package sheet

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions the reader cannot open.
var ErrUnsupportedFormat = errors.New("unsupported file type")

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("file has no header row")

// Table is a spreadsheet read into memory: one header row plus data rows.
type Table struct {
	Name     string
	Sheet    string
	Encoding string
	Hash     string // sha256 of the raw file bytes
	Headers  []string
	Rows     []Row
}

// Row is one data row. Line is the 1-based row number in the source file.
type Row struct {
	Line  int
	Cells []string
}

// Cell returns the i-th cell or "" when the row is short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Blank reports whether every cell is empty after trimming.
func (r Row) Blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// FileExt returns the lower-cased extension of name.
func FileExt(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// Supported reports whether name has an extension the reader handles.
func Supported(name string) bool {
	switch FileExt(name) {
	case ".csv", ".txt", ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}

// ReadFile opens path and reads its first worksheet.
func ReadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ReadBytes(data, filepath.Base(path))
}

// Read reads an uploaded file; name decides the format.
func Read(r io.Reader, name string) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return ReadBytes(data, name)
}

// ReadBytes parses raw file contents according to the extension of name.
func ReadBytes(data []byte, name string) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch FileExt(name) {
	case ".csv", ".txt":
		t, err = readCSV(data)
	case ".xlsx", ".xlsm":
		t, err = readXLSX(bytes.NewReader(data), "")
	case ".xls":
		t, err = readXLS(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	sum := sha256.Sum256(data)
	t.Name = name
	t.Hash = hex.EncodeToString(sum[:])
	return t, nil
}

// fromRecords turns raw rows into a Table. Leading blank rows are skipped,
// the first non-blank row is the header, and blank data rows are dropped.
func fromRecords(records [][]string) (*Table, error) {
	t := &Table{}
	headerAt := -1
	for i, rec := range records {
		if (Row{Cells: rec}).Blank() {
			continue
		}
		headerAt = i
		t.Headers = cleanHeaders(rec)
		break
	}
	if headerAt < 0 {
		return nil, ErrEmptyFile
	}
	for i := headerAt + 1; i < len(records); i++ {
		row := Row{Line: i + 1, Cells: records[i]}
		if row.Blank() {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func cleanHeaders(rec []string) []string {
	out := make([]string, len(rec))
	for i, h := range rec {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.TrimSpace(h)
	}
	return out
}
