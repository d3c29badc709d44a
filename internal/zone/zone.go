package zone

import (
	"errors"
	"sort"

	"github.com/ocrdesk/invoice-capture/internal/geometry"
)

const (
	// MinZoneSize is the smallest width/height a zone may shrink to.
	MinZoneSize = 5

	// ResizeStep is how much one resize operation changes a dimension.
	ResizeStep = 1
)

// ErrNameTaken is returned by Rename when another zone in the same
// collection already uses the requested property name.
var ErrNameTaken = errors.New("property name already in use by another zone")

// Zone is a named rectangle in image coordinate space bound to one
// extracted field. Item zones belong to a repeating line-item row;
// RowID 0 marks the base template row.
type Zone struct {
	ID           int     `json:"id"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	PropertyName string  `json:"propertyName"`
	IsItem       bool    `json:"isItem,omitempty"`
	RowID        int     `json:"rowId,omitempty"`
}

// ResizeDirection selects which dimension a Resize call changes.
type ResizeDirection string

const (
	GrowWidth    ResizeDirection = "width+"
	ShrinkWidth  ResizeDirection = "width-"
	GrowHeight   ResizeDirection = "height+"
	ShrinkHeight ResizeDirection = "height-"
)

// Collection is the authoritative set of zones for one page or
// template. It is not safe for concurrent use; callers serialize
// access (the capture session holds a lock around every mutation).
type Collection struct {
	zones []Zone
}

// NewCollection wraps an existing zone slice. The slice is copied so
// the caller's backing array is never shared.
func NewCollection(zones []Zone) *Collection {
	c := &Collection{zones: make([]Zone, len(zones))}
	copy(c.zones, zones)
	return c
}

// Zones returns a copy of the zones in insertion order.
func (c *Collection) Zones() []Zone {
	out := make([]Zone, len(c.zones))
	copy(out, c.zones)
	return out
}

// Len returns the number of zones.
func (c *Collection) Len() int {
	return len(c.zones)
}

// Get returns the zone with the given id.
func (c *Collection) Get(id int) (Zone, bool) {
	for _, z := range c.zones {
		if z.ID == id {
			return z, true
		}
	}
	return Zone{}, false
}

// Clone returns a deep copy. Pages in a batch each get their own clone
// of the template's collection so edits never leak across pages.
func (c *Collection) Clone() *Collection {
	return NewCollection(c.zones)
}

func (c *Collection) nextID() int {
	max := 0
	for _, z := range c.zones {
		if z.ID > max {
			max = z.ID
		}
	}
	return max + 1
}

// Create appends a new zone covering the given rectangle and returns
// it. The id is the highest existing id plus one.
func (c *Collection) Create(r geometry.Rect, propertyName string) Zone {
	z := Zone{
		ID:           c.nextID(),
		X:            r.X,
		Y:            r.Y,
		Width:        r.Width,
		Height:       r.Height,
		PropertyName: propertyName,
	}
	c.zones = append(c.zones, z)
	return z
}

// Move sets a zone's position. Unknown ids are ignored.
func (c *Collection) Move(id int, x, y float64) {
	for i := range c.zones {
		if c.zones[i].ID == id {
			c.zones[i].X = x
			c.zones[i].Y = y
			return
		}
	}
}

// ApplyDelta moves every zone except excludeID by (dx, dy). After an
// operator drags one zone into place on a skewed scan, this re-aligns
// the remaining zones in a single gesture. The dragged zone already
// sits at its new position and must not be moved twice.
func (c *Collection) ApplyDelta(dx, dy float64, excludeID int) {
	for i := range c.zones {
		if c.zones[i].ID == excludeID {
			continue
		}
		c.zones[i].X += dx
		c.zones[i].Y += dy
	}
}

// Resize grows or shrinks one dimension by ResizeStep, never below
// MinZoneSize. Unknown ids are ignored.
func (c *Collection) Resize(id int, direction ResizeDirection) {
	for i := range c.zones {
		if c.zones[i].ID != id {
			continue
		}
		switch direction {
		case GrowWidth:
			c.zones[i].Width += ResizeStep
		case ShrinkWidth:
			if w := c.zones[i].Width - ResizeStep; w >= MinZoneSize {
				c.zones[i].Width = w
			} else {
				c.zones[i].Width = MinZoneSize
			}
		case GrowHeight:
			c.zones[i].Height += ResizeStep
		case ShrinkHeight:
			if h := c.zones[i].Height - ResizeStep; h >= MinZoneSize {
				c.zones[i].Height = h
			} else {
				c.zones[i].Height = MinZoneSize
			}
		}
		return
	}
}

// Rename binds a zone to a new property name. Within one collection a
// property name can belong to at most one zone.
func (c *Collection) Rename(id int, propertyName string) error {
	for _, z := range c.zones {
		if z.ID != id && z.PropertyName == propertyName && propertyName != "" {
			return ErrNameTaken
		}
	}
	for i := range c.zones {
		if c.zones[i].ID == id {
			c.zones[i].PropertyName = propertyName
			return nil
		}
	}
	return nil
}

// Delete removes the zone with the given id.
func (c *Collection) Delete(id int) {
	for i := range c.zones {
		if c.zones[i].ID == id {
			c.zones = append(c.zones[:i], c.zones[i+1:]...)
			return
		}
	}
}

// ToggleItem flips a zone's item flag. Turning the flag off also
// clears the row id so a former item zone never keeps a stale row.
func (c *Collection) ToggleItem(id int) {
	for i := range c.zones {
		if c.zones[i].ID == id {
			c.zones[i].IsItem = !c.zones[i].IsItem
			if !c.zones[i].IsItem {
				c.zones[i].RowID = 0
			}
			return
		}
	}
}

// PropertyNames returns the sorted set of non-empty property names in
// the collection.
func (c *Collection) PropertyNames() []string {
	names := make([]string, 0, len(c.zones))
	for _, z := range c.zones {
		if z.PropertyName != "" {
			names = append(names, z.PropertyName)
		}
	}
	sort.Strings(names)
	return names
}

// HasProperty reports whether any zone carries the given name.
func (c *Collection) HasProperty(name string) bool {
	for _, z := range c.zones {
		if z.PropertyName == name {
			return true
		}
	}
	return false
}
