// Package dataset loads the cleaned comments table of one dataset.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"commentmap/internal/domain"
	"commentmap/internal/logger"
)

// File names looked up inside a dataset's processed directory, in order of preference.
const (
	CSVFile  = "comments_cleaned.csv"
	XLSXFile = "comments_cleaned.xlsx"
)

// Column names of the cleaned comments table.
const (
	ColumnText     = "comment_text"
	ColumnSeq      = "seq"
	ColumnLikes    = "likes"
	ColumnTime     = "time_raw"
	ColumnLocation = "location_raw"
	ColumnUser     = "user"
)

var (
	// ErrInputNotFound is returned when neither the CSV nor the XLSX table exists.
	ErrInputNotFound = errors.New("cleaned comments file not found")
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("required column missing")
	// ErrInvalidSeq is returned when the seq column cannot be turned into ids.
	ErrInvalidSeq = errors.New("invalid seq column")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// nullTokens are the cell values treated as missing.
var nullTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {}, "-NaN": {}, "-nan": {},
	"1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {},
}

// IsNull reports whether a raw cell value counts as missing.
func IsNull(cell string) bool {
	_, ok := nullTokens[cell]
	return ok
}

// Result is a loaded table.
type Result struct {
	// Source is the file the comments were read from.
	Source   string
	Comments []domain.Comment
}

// Loader reads comments from a processed directory.
type Loader struct {
	logger *zap.SugaredLogger
}

// NewLoader returns a loader; a nil logger discards output.
func NewLoader(log *zap.SugaredLogger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{logger: log}
}

// Load reads the CSV table if present, otherwise the first sheet of the XLSX table.
func (l *Loader) Load(dir string) (*Result, error) {
	csvPath := filepath.Join(dir, CSVFile)
	xlsxPath := filepath.Join(dir, XLSXFile)

	var (
		rows   [][]string
		source string
		err    error
	)
	switch {
	case fileExists(csvPath):
		source = csvPath
		rows, err = readCSV(csvPath)
	case fileExists(xlsxPath):
		source = xlsxPath
		rows, err = readXLSX(xlsxPath)
	default:
		return nil, errors.WithHintf(
			errors.Wrapf(ErrInputNotFound, "%s or %s", csvPath, xlsxPath),
			"run the cleaning step for this dataset first")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}

	comments, err := parse(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", source)
	}
	withLikes := 0
	for _, c := range comments {
		if c.Likes.Present() {
			withLikes++
		}
	}
	l.logger.Infow("loaded comments", logger.FieldPath, source, logger.FieldCount, len(comments), "with_likes", withLikes)
	return &Result{Source: source, Comments: comments}, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "sheet %s", sheets[0])
	}
	// trailing blank rows carry no data
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

// table gives column access by name over ragged rows.
type table struct {
	columns map[string]int
	rows    [][]string
}

func (t table) has(col string) bool {
	_, ok := t.columns[col]
	return ok
}

// cell returns the raw value and whether it is present.
func (t table) cell(row int, col string) (string, bool) {
	idx, ok := t.columns[col]
	if !ok || idx >= len(t.rows[row]) {
		return "", false
	}
	v := t.rows[row][idx]
	if IsNull(v) {
		return "", false
	}
	return v, true
}

func parse(rows [][]string) ([]domain.Comment, error) {
	if len(rows) == 0 {
		return nil, errors.WithHintf(errors.Wrap(ErrMissingColumn, ColumnText), "the table has no header row")
	}
	t := table{columns: make(map[string]int, len(rows[0])), rows: rows[1:]}
	for i, name := range rows[0] {
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = i
		}
	}
	if !t.has(ColumnText) {
		return nil, errors.WithHintf(
			errors.Wrap(ErrMissingColumn, ColumnText),
			"the cleaned table must contain a %q column", ColumnText)
	}

	ids, err := assignIDs(t)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Comment, len(t.rows))
	for i := range t.rows {
		text, _ := t.cell(i, ColumnText)
		c := domain.Comment{ID: ids[i], Text: text}
		if raw, ok := t.cell(i, ColumnLikes); ok {
			if v, err := parseInt(raw); err == nil {
				c.Likes = domain.Some(v)
			}
		}
		c.Time = optionalString(t, i, ColumnTime)
		c.Location = optionalString(t, i, ColumnLocation)
		c.User = optionalString(t, i, ColumnUser)
		out[i] = c
	}
	return out, nil
}

func optionalString(t table, row int, col string) domain.Optional[string] {
	if v, ok := t.cell(row, col); ok {
		return domain.Some(v)
	}
	return domain.None[string]()
}

// assignIDs forward-fills the seq column, or numbers rows from 1 when seq is absent or empty.
func assignIDs(t table) ([]int64, error) {
	ids := make([]int64, len(t.rows))
	if t.has(ColumnSeq) {
		var (
			last int64
			seen bool
		)
		for i := range t.rows {
			raw, ok := t.cell(i, ColumnSeq)
			if !ok {
				ids[i] = last
				continue
			}
			v, err := parseInt(raw)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidSeq, "row %d: %q is not an integer in range", i+1, raw)
			}
			if !seen && i > 0 {
				return nil, errors.WithHintf(
					errors.Wrapf(ErrInvalidSeq, "rows 1-%d have no seq value to fill from", i),
					"give the first row a seq value or drop the column")
			}
			last, seen = v, true
			ids[i] = last
		}
		if seen {
			return ids, nil
		}
	}
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids, nil
}

// parseNumber accepts integer and float notation and rejects non-finite values.
func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Newf("non-finite number %q", raw)
	}
	return v, nil
}

// parseInt truncates a parsed number toward zero and rejects values outside the int64 range.
func parseInt(raw string) (int64, error) {
	v, err := parseNumber(raw)
	if err != nil {
		return 0, err
	}
	v = math.Trunc(v)
	// -2^63 is exact in float64; 2^63 is the first value past MaxInt64.
	if v < math.MinInt64 || v >= -math.MinInt64 {
		return 0, errors.Newf("number %q overflows int64", raw)
	}
	return int64(v), nil
}
