package specsource

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

// ErrBadSpreadsheet marks local parse failures. They are never retried.
var ErrBadSpreadsheet = errors.New("invalid spec spreadsheet")

// Row is one configuration request from a spreadsheet.
type Row struct {
	FromName       string
	SpecID         string
	ConfigName     string
	SpecWeek       string
	GG             bool
	ChangeVariants []string
}

var (
	baseHeaders     = []string{"from", "specification", "effectivityweek", "configname"}
	requiredHeaders = []string{"gg", "from", "specification", "effectivityweek", "configname"}

	headerNormRe = regexp.MustCompile(`[\s_]+`)
)

var truthyCells = map[string]bool{
	"1": true, "y": true, "yes": true, "true": true,
	"t": true, "x": true, "ok": true, "✓": true, "✔": true,
}

func normHeader(s string) string {
	return headerNormRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
}

func truthy(s string) bool {
	return truthyCells[strings.ToLower(strings.TrimSpace(s))]
}

// ReadRows parses the first sheet of the spreadsheet. Two layouts are
// accepted: with a leading gg column, or without (gg then defaults to true).
// Columns after the required block are change-variant columns; their values
// are deduplicated preserving order. Rows without a specification id are
// skipped.
func ReadRows(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrBadSpreadsheet, "open %s: %v", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.Wrapf(ErrBadSpreadsheet, "%s has no sheets", path)
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(ErrBadSpreadsheet, "read %s: %v", path, err)
	}
	if len(cells) == 0 {
		return nil, errors.Wrapf(ErrBadSpreadsheet, "%s is empty", path)
	}

	header := make([]string, len(cells[0]))
	for i, h := range cells[0] {
		header[i] = normHeader(h)
	}
	hasGG, err := validateHeader(header, cells[0])
	if err != nil {
		return nil, err
	}

	fixed := len(baseHeaders)
	if hasGG {
		fixed = len(requiredHeaders)
	}

	col := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rows := make([]Row, 0, len(cells)-1)
	for _, raw := range cells[1:] {
		offset := 0
		gg := true
		if hasGG {
			offset = 1
			gg = truthy(col(raw, 0))
		}
		specID := col(raw, offset+1)
		if specID == "" {
			continue
		}
		fromName := col(raw, offset)
		specWeek := col(raw, offset+2)
		configName := col(raw, offset+3)
		if configName == "" {
			configName = fromName
		}
		if configName == "" {
			configName = specID
		}

		seen := make(map[string]bool)
		var variants []string
		for i := fixed; i < len(raw); i++ {
			v := col(raw, i)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			variants = append(variants, v)
		}

		rows = append(rows, Row{
			FromName:       fromName,
			SpecID:         specID,
			ConfigName:     configName,
			SpecWeek:       specWeek,
			GG:             gg,
			ChangeVariants: variants,
		})
	}
	return rows, nil
}

func validateHeader(norm, original []string) (hasGG bool, err error) {
	hasGG = len(norm) >= 1 && norm[0] == "gg"
	need := baseHeaders
	if hasGG {
		need = requiredHeaders
	}
	if len(norm) < len(need) {
		return false, errors.Wrapf(ErrBadSpreadsheet,
			"expected headers %v, got %v", need, original)
	}
	for i, want := range need {
		if norm[i] != want {
			return false, errors.Wrapf(ErrBadSpreadsheet,
				"expected headers %v, got %v", need, original)
		}
	}
	return hasGG, nil
}
