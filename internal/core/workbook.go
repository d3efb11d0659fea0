package core

// workbook.go reads an uploaded file into sheets of tagged cells.
//
// xlsx content is parsed with excelize, CSV with encoding/csv after decoding
// UTF-8, UTF-16 or Windows-1250 text with golang.org/x/text. The declared
// mime type must name a spreadsheet or CSV type and the sniffed content must
// agree with it. Every failure is a FileFormatError: the job fails before a
// single record is written.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Row is one non-blank spreadsheet row. Number is the 1-based row number in the sheet.
type Row struct {
	Number int
	Cells  []Cell
}

// Sheet is a named list of rows in file order.
type Sheet struct {
	Name string
	Rows []Row
}

// Workbook is the parsed content of an upload.
type Workbook struct {
	Sheets []Sheet
}

// RowCount returns the number of rows across all sheets.
func (w *Workbook) RowCount() int {
	n := 0
	for _, s := range w.Sheets {
		n += len(s.Rows)
	}
	return n
}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatXLSX
	formatCSV
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
)

// AcceptedMimeTypes lists the declared types an upload may carry.
var AcceptedMimeTypes = map[string]fileFormat{
	mimeXLSX:                      formatXLSX,
	mimeXLS:                       formatXLSX,
	"application/x-excel":         formatXLSX,
	"text/csv":                    formatCSV,
	"application/csv":             formatCSV,
	"text/comma-separated-values": formatCSV,
	"text/plain":                  formatCSV,
}

// declaredFormat resolves the format named by the upload's mime type.
// Generic binary types fall back to the file extension.
func declaredFormat(meta FileMeta) (fileFormat, error) {
	mt, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(meta.MimeType)), ";")
	mt = strings.TrimSpace(mt)

	if mt == "" || mt == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(meta.Name)) {
		case ".xlsx", ".xlsm", ".xls":
			return formatXLSX, nil
		case ".csv", ".txt":
			return formatCSV, nil
		}
	}

	f, ok := AcceptedMimeTypes[mt]
	if !ok {
		return formatUnknown, &FileFormatError{File: meta.Name, Reason: "unsupported file type " + meta.MimeType}
	}
	if mt == "text/plain" && !strings.EqualFold(filepath.Ext(meta.Name), ".csv") {
		return formatUnknown, &FileFormatError{File: meta.Name, Reason: "unsupported file type text/plain without .csv extension"}
	}
	return f, nil
}

// ValidateUpload checks the metadata of an upload before a job is created.
func ValidateUpload(meta FileMeta, maxSize int64) error {
	if meta.Name == "" {
		return &FileFormatError{Reason: "no file provided"}
	}
	if meta.Size == 0 {
		return &FileFormatError{File: meta.Name, Reason: "empty file"}
	}
	if maxSize > 0 && meta.Size > maxSize {
		return &FileFormatError{File: meta.Name, Reason: fmt.Sprintf("file too large: %d bytes exceeds %d", meta.Size, maxSize)}
	}
	_, err := declaredFormat(meta)
	return err
}

// ReadWorkbookFile opens the upload at meta.Path and reads it.
func ReadWorkbookFile(ctx context.Context, meta FileMeta, maxSize int64) (*Workbook, error) {
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, &FileFormatError{File: meta.Name, Reason: "open file", Err: err}
	}
	defer f.Close()
	return ReadWorkbook(ctx, f, meta, maxSize)
}

// ReadWorkbook reads every sheet of an xlsx or CSV file. Blank rows are dropped.
func ReadWorkbook(ctx context.Context, r io.Reader, meta FileMeta, maxSize int64) (*Workbook, error) {
	declared, err := declaredFormat(meta)
	if err != nil {
		return nil, err
	}

	limit := maxSize
	if limit <= 0 {
		limit = 1 << 62
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &FileFormatError{File: meta.Name, Reason: "read file", Err: err}
	}
	if int64(len(data)) > limit {
		return nil, &FileFormatError{File: meta.Name, Reason: fmt.Sprintf("file too large: exceeds %d bytes", maxSize)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &FileFormatError{File: meta.Name, Reason: "empty file"}
	}

	sniffed := sniffFormat(data)
	if sniffed != declared {
		return nil, &FileFormatError{
			File:   meta.Name,
			Reason: fmt.Sprintf("content does not match declared type %s (detected %s)", meta.MimeType, mimetype.Detect(data).String()),
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch declared {
	case formatXLSX:
		return readXLSX(ctx, data, meta)
	default:
		return readCSV(data, meta)
	}
}

// sniffFormat classifies the content. Legacy binary .xls is not readable and
// comes back as formatUnknown.
func sniffFormat(data []byte) fileFormat {
	m := mimetype.Detect(data)
	for ; m != nil; m = m.Parent() {
		switch {
		case m.Is(mimeXLSX), m.Is("application/zip"):
			return formatXLSX
		case m.Is("text/csv"), m.Is("text/plain"):
			return formatCSV
		}
	}
	return formatUnknown
}

func readXLSX(ctx context.Context, data []byte, meta FileMeta) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FileFormatError{File: meta.Name, Reason: "open workbook", Err: err}
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		formatted, err := f.GetRows(name)
		if err != nil {
			return nil, &FileFormatError{File: meta.Name, Reason: "read sheet " + name, Err: err}
		}
		raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &FileFormatError{File: meta.Name, Reason: "read sheet " + name, Err: err}
		}

		sheet := Sheet{Name: name}
		for i := range raw {
			var shown []string
			if i < len(formatted) {
				shown = formatted[i]
			}
			cells := make([]Cell, len(raw[i]))
			for j, rawValue := range raw[i] {
				var display string
				if j < len(shown) {
					display = shown[j]
				}
				var kind excelize.CellType
				if rawValue != "" {
					axis, err := excelize.CoordinatesToCellName(j+1, i+1)
					if err != nil {
						return nil, &FileFormatError{File: meta.Name, Reason: "read sheet " + name, Err: err}
					}
					if kind, err = f.GetCellType(name, axis); err != nil {
						return nil, &FileFormatError{File: meta.Name, Reason: "read sheet " + name, Err: err}
					}
				}
				cells[j] = xlsxCell(kind, rawValue, display)
			}
			if blankRow(cells) {
				continue
			}
			sheet.Rows = append(sheet.Rows, Row{Number: i + 1, Cells: cells})
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}

	if len(wb.Sheets) == 0 {
		return nil, &FileFormatError{File: meta.Name, Reason: "workbook has no sheets"}
	}
	return wb, nil
}

// xlsxCell tags a cell from its stored type and its raw and formatted
// values. String cells stay text even when they look numeric, so ids keep
// leading zeros and every digit. A numeric cell whose formatted text reads
// as a date is a date serial.
func xlsxCell(kind excelize.CellType, raw, display string) Cell {
	if strings.TrimSpace(raw) == "" {
		return Cell{Kind: CellEmpty}
	}
	switch kind {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeBool, excelize.CellTypeError:
		return TextCell(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return TextCell(raw)
	}
	if display != "" && display != raw {
		if _, ok := ParseDateTime(display); ok {
			if t, ok := excelSerialToTime(f); ok {
				return DateCell(t)
			}
		}
	}
	return NumberCell(f)
}

func readCSV(data []byte, meta FileMeta) (*Workbook, error) {
	decoded := transform.NewReader(bytes.NewReader(data), csvDecoder(data))
	br := bufio.NewReader(decoded)

	first, err := br.Peek(min(br.Size(), len(data)))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, &FileFormatError{File: meta.Name, Reason: "read csv", Err: err}
	}

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(first)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	name := strings.TrimSuffix(filepath.Base(meta.Name), filepath.Ext(meta.Name))
	sheet := Sheet{Name: name}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FileFormatError{File: meta.Name, Reason: "invalid csv", Err: err}
		}
		line, _ := cr.FieldPos(0)
		cells := make([]Cell, len(record))
		for i, v := range record {
			cells[i] = TextCell(v)
		}
		if blankRow(cells) {
			continue
		}
		sheet.Rows = append(sheet.Rows, Row{Number: line, Cells: cells})
	}

	return &Workbook{Sheets: []Sheet{sheet}}, nil
}

// csvDecoder picks the text encoding of a CSV export. Files with a BOM or
// valid UTF-8 are decoded as Unicode; anything else is taken to be
// Windows-1250, the code page Excel uses for Polish exports.
func csvDecoder(data []byte) transform.Transformer {
	if utf8.Valid(data) || bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF}) {
		return unicode.BOMOverride(unicode.UTF8.NewDecoder())
	}
	return charmap.Windows1250.NewDecoder()
}

// detectDelimiter picks the most frequent of ',', ';' and tab on the first line.
func detectDelimiter(head []byte) rune {
	line, _, _ := bytes.Cut(head, []byte("\n"))
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func blankRow(cells []Cell) bool {
	for _, c := range cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}
