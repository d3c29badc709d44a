package zone

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// DefaultRowOffset is the vertical spacing between repeated line-item
// rows, in image-space units.
const DefaultRowOffset = 40

// ErrTemplateRow is returned when a caller tries to delete row 0, the
// base template row that repeated rows are cloned from.
var ErrTemplateRow = errors.New("the template row cannot be deleted")

var rowSuffix = regexp.MustCompile(`_r\d+$`)

// BaseName strips the row suffix from an item property name, so
// "cenaMj_r2" and "cenaMj" both map to the column header "cenaMj".
func BaseName(propertyName string) string {
	return rowSuffix.ReplaceAllString(propertyName, "")
}

// Row is one line-item row of a page: the set of item zones sharing a
// row id, keyed by column header (base property name).
type Row struct {
	RowID int
	Cells map[string]Zone
}

// AddRow clones the base template row into a new repeated row. Each
// clone gets a fresh id, is shifted down by rowOffset per row, and its
// property name gains a "_r<rowId>" suffix so the flat name contract
// of saved templates is preserved. The new zones are returned.
func (c *Collection) AddRow(rowOffset float64) []Zone {
	maxRowID := 0
	for _, z := range c.zones {
		if z.IsItem && z.RowID > maxRowID {
			maxRowID = z.RowID
		}
	}
	nextRowID := maxRowID + 1

	nextID := c.nextID()
	var created []Zone
	for _, z := range c.zones {
		if !z.IsItem || z.RowID != 0 {
			continue
		}
		clone := z
		clone.ID = nextID
		nextID++
		clone.Y = z.Y + rowOffset*float64(nextRowID)
		clone.RowID = nextRowID
		clone.PropertyName = fmt.Sprintf("%s_r%d", z.PropertyName, nextRowID)
		created = append(created, clone)
	}
	c.zones = append(c.zones, created...)
	return created
}

// DeleteRow removes every zone with the given row id and returns the
// property names that were removed, so the caller can prune values no
// longer referenced by any zone. Row 0 is protected.
func (c *Collection) DeleteRow(rowID int) ([]string, error) {
	if rowID == 0 {
		return nil, ErrTemplateRow
	}

	var removed []string
	kept := c.zones[:0]
	for _, z := range c.zones {
		if z.RowID == rowID {
			removed = append(removed, z.PropertyName)
			continue
		}
		kept = append(kept, z)
	}
	c.zones = kept
	return removed, nil
}

// Rows groups item zones by row id, ordered by row id, with cells
// keyed by column header.
func (c *Collection) Rows() []Row {
	grouped := make(map[int]map[string]Zone)
	for _, z := range c.zones {
		if !z.IsItem {
			continue
		}
		cells, ok := grouped[z.RowID]
		if !ok {
			cells = make(map[string]Zone)
			grouped[z.RowID] = cells
		}
		cells[BaseName(z.PropertyName)] = z
	}

	ids := make([]int, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, Row{RowID: id, Cells: grouped[id]})
	}
	return rows
}

// Headers returns the deduplicated, sorted column headers of the item
// table: every item zone's property name with the row suffix stripped.
func (c *Collection) Headers() []string {
	seen := make(map[string]struct{})
	var headers []string
	for _, z := range c.zones {
		if !z.IsItem {
			continue
		}
		base := BaseName(z.PropertyName)
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		headers = append(headers, base)
	}
	sort.Strings(headers)
	return headers
}
