package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// Columns is the exact column order of a per-repository result table.
var Columns = []string{
	"ID", "hash", "author", "date", "commit_message", "is_merge",
	"lines_changed", "insertions", "deletions",
	"dmm_unit_size", "dmm_unit_complexity", "dmm_unit_interfacing",
	"radon_LOC", "radon_LLOC", "radon_SLOC", "radon_comments",
	"radon_avg_cc", "radon_avg_MI", "radon_avg_vocabulary", "radon_avg_length",
	"radon_avg_volume", "radon_avg_difficulty", "radon_avg_effort", "radon_avg_time",
	"radon_avg_bugs",
}

// RepoNameColumn is appended to Columns in the merged table.
const RepoNameColumn = "repo_name"

// DateLayout is the layout dates are written with. Dates are always UTC.
const DateLayout = "2006-01-02 15:04:05-07:00"

// dateLayouts are accepted when reading, covering both our own output and
// tables written by pandas or other RFC 3339 producers.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func formatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func parseFloat(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// parseInt accepts integral floats such as "12.0", which pandas writes for
// integer columns that once held a missing value.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// encodeRow renders row in Columns order. Text cells use LF line endings
// because CSV readers drop the CR of a quoted CRLF.
func encodeRow(row domain.MetricRow) []string {
	return []string{
		strconv.Itoa(row.ID),
		row.Hash,
		domain.NormalizeLineEndings(row.Author),
		formatDate(row.Date),
		domain.NormalizeLineEndings(row.Message),
		formatBool(row.IsMerge),
		strconv.Itoa(row.LinesChanged),
		strconv.Itoa(row.Insertions),
		strconv.Itoa(row.Deletions),
		formatFloat(row.DMMUnitSize),
		formatFloat(row.DMMUnitComplexity),
		formatFloat(row.DMMUnitInterfacing),
		strconv.Itoa(row.LOC),
		strconv.Itoa(row.LLOC),
		strconv.Itoa(row.SLOC),
		strconv.Itoa(row.Comments),
		formatFloat(row.AvgCC),
		formatFloat(row.AvgMI),
		formatFloat(row.AvgVocabulary),
		formatFloat(row.AvgLength),
		formatFloat(row.AvgVolume),
		formatFloat(row.AvgDifficulty),
		formatFloat(row.AvgEffort),
		formatFloat(row.AvgTime),
		formatFloat(row.AvgBugs),
	}
}

// columnName strips a UTF-8 byte order mark and surrounding blanks from a header cell.
func columnName(cell string) string {
	return strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
}

// rowDecoder maps a header onto Columns so that tables with extra or
// reordered columns can still be read.
type rowDecoder struct {
	index map[string]int
}

func newRowDecoder(header []string) (*rowDecoder, error) {
	d := &rowDecoder{index: make(map[string]int, len(header))}
	for i, name := range header {
		d.index[columnName(name)] = i
	}
	for _, name := range Columns[1:] {
		if _, ok := d.index[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrResultTableCorrupt, name)
		}
	}
	return d, nil
}

func (d *rowDecoder) decode(record []string) (domain.MetricRow, error) {
	var (
		row  domain.MetricRow
		errs []string
	)
	get := func(name string) string {
		i, ok := d.index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}
	setInt := func(name string, dst *int) {
		n, err := parseInt(get(name))
		if err != nil {
			errs = append(errs, name+": "+err.Error())
		}
		*dst = n
	}
	setFloat := func(name string, dst **float64) {
		f, err := parseFloat(get(name))
		if err != nil {
			errs = append(errs, name+": "+err.Error())
		}
		*dst = f
	}

	setInt("ID", &row.ID)
	row.Hash = get("hash")
	row.Author = get("author")
	row.Message = get("commit_message")

	date, err := parseDate(get("date"))
	if err != nil {
		errs = append(errs, "date: "+err.Error())
	}
	row.Date = date

	isMerge, err := strconv.ParseBool(get("is_merge"))
	if err != nil {
		errs = append(errs, "is_merge: "+err.Error())
	}
	row.IsMerge = isMerge

	setInt("lines_changed", &row.LinesChanged)
	setInt("insertions", &row.Insertions)
	setInt("deletions", &row.Deletions)
	setFloat("dmm_unit_size", &row.DMMUnitSize)
	setFloat("dmm_unit_complexity", &row.DMMUnitComplexity)
	setFloat("dmm_unit_interfacing", &row.DMMUnitInterfacing)
	setInt("radon_LOC", &row.LOC)
	setInt("radon_LLOC", &row.LLOC)
	setInt("radon_SLOC", &row.SLOC)
	setInt("radon_comments", &row.Comments)
	setFloat("radon_avg_cc", &row.AvgCC)
	setFloat("radon_avg_MI", &row.AvgMI)
	setFloat("radon_avg_vocabulary", &row.AvgVocabulary)
	setFloat("radon_avg_length", &row.AvgLength)
	setFloat("radon_avg_volume", &row.AvgVolume)
	setFloat("radon_avg_difficulty", &row.AvgDifficulty)
	setFloat("radon_avg_effort", &row.AvgEffort)
	setFloat("radon_avg_time", &row.AvgTime)
	setFloat("radon_avg_bugs", &row.AvgBugs)

	if row.Hash == "" {
		errs = append(errs, "hash: empty")
	}
	if len(errs) > 0 {
		return domain.MetricRow{}, fmt.Errorf("%w: %s", domain.ErrResultTableCorrupt, strings.Join(errs, "; "))
	}
	return row, nil
}
