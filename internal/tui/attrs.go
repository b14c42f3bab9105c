package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	table "github.com/charmbracelet/bubbles/table"

	"slippy/internal/geom"
)

// refreshAttrsFromCurrent rebuilds the table from the most recent overlay.
func (m *Model) refreshAttrsFromCurrent() {
	if len(m.overlays) == 0 {
		m.showAttrs = false
		m.status = "no attributes for current dataset"
		return
	}
	cols, rows := buildAttributes(m.overlays[len(m.overlays)-1].data)
	// No columns or rows would make the table panic on render.
	if len(cols) == 0 || len(rows) == 0 {
		m.showAttrs = false
		m.status = "no attributes for current dataset"
		return
	}
	tcols := make([]table.Column, 0, len(cols)+1)
	tcols = append(tcols, table.Column{Title: "#", Width: 4})
	maxColW := 24
	for _, c := range cols {
		tcols = append(tcols, table.Column{Title: c, Width: min(len(c)+2, maxColW)})
	}
	trows := make([]table.Row, 0, len(rows))
	for i, r := range rows {
		row := make([]string, 0, len(r)+1)
		row = append(row, strconv.Itoa(i+1))
		row = append(row, r...)
		trows = append(trows, table.Row(row))
	}
	// Avoid transient mismatch: clear rows, set columns, then set rows
	m.tbl.SetRows(nil)
	m.tbl.SetColumns(tcols)
	m.tbl.SetRows(trows)
}

// buildAttributes returns the union of property keys as columns, preceded by
// the coordinates, and one row per feature.
func buildAttributes(c *geom.Collection) ([]string, [][]string) {
	if c == nil || len(c.Features) == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	var keys []string
	for _, f := range c.Features {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "id" || keys[j] == "id" {
			return keys[i] == "id"
		}
		return keys[i] < keys[j]
	})

	cols := append([]string{"lon", "lat"}, keys...)
	rows := make([][]string, 0, len(c.Features))
	for _, f := range c.Features {
		vals := make([]string, 0, len(cols))
		vals = append(vals, fmt.Sprintf("%.5f", f.Point.Lon()), fmt.Sprintf("%.5f", f.Point.Lat()))
		for _, k := range keys {
			vals = append(vals, formatValue(f.Properties[k]))
		}
		rows = append(rows, vals)
	}
	return cols, rows
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		bs, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(bs)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
