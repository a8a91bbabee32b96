package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// decodeText converts CSV bytes to UTF-8. UTF-16 needs a BOM; bytes that are
// not valid UTF-8 are treated as Windows-1252, which is what the billing
// exports use when they are not UTF-8.
func decodeText(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return nil, "", fmt.Errorf("decode utf-16: %w", err)
		}
		return out, "utf-16", nil
	case utf8.Valid(data):
		if bytes.HasPrefix(data, bomUTF8) {
			return data[len(bomUTF8):], "utf-8-bom", nil
		}
		return data, "utf-8", nil
	default:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return nil, "", fmt.Errorf("decode windows-1252: %w", err)
		}
		return out, "windows-1252", nil
	}
}

func readCSV(data []byte) (*Table, error) {
	decoded, enc, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	t, err := fromRecords(records)
	if err != nil {
		return nil, err
	}
	t.Encoding = enc
	return t, nil
}

// readXLSX reads the named sheet, or the first one when sheet is "".
// Raw cell values are requested so dates arrive as serial numbers rather
// than in whatever display format the workbook used.
func readXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	t, err := fromRecords(rows)
	if err != nil {
		return nil, err
	}
	t.Sheet = sheet
	t.Encoding = "xlsx"
	return t, nil
}

func readXLS(r io.ReadSeeker) (*Table, error) {
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, ErrEmptyFile
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, ErrEmptyFile
	}
	records := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		records = append(records, cells)
	}
	t, err := fromRecords(records)
	if err != nil {
		return nil, err
	}
	t.Sheet = ws.Name
	t.Encoding = "xls"
	return t, nil
}
