package capture

import (
	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// Page is one scanned image in a batch, with its own zone collection
// (cloned from the batch's profile, never shared) and the extracted or
// hand-edited values keyed by property name.
type Page struct {
	Filename    string
	ContentType string
	Image       []byte
	Zones       *zone.Collection
	Values      map[string]string
	Locked      bool
}

// PageSnapshot is the persisted form of a page: the zone layout and
// values, without the image blob (images live in Storage).
type PageSnapshot struct {
	Filename    string            `json:"filename"`
	ContentType string            `json:"contentType,omitempty"`
	Zones       []zone.Zone       `json:"zones"`
	Values      map[string]string `json:"values"`
}

// snapshot flattens the page for persistence.
func (p *Page) snapshot() PageSnapshot {
	values := make(map[string]string, len(p.Values))
	for k, v := range p.Values {
		values[k] = v
	}
	return PageSnapshot{
		Filename:    p.Filename,
		ContentType: p.ContentType,
		Zones:       p.Zones.Zones(),
		Values:      values,
	}
}

// PageView is the JSON shape of a page reported to API clients.
type PageView struct {
	Filename string            `json:"filename"`
	ImageURL string            `json:"imageUrl"`
	Zones    []zone.Zone       `json:"zones"`
	Values   map[string]string `json:"values"`
	IsLocked bool              `json:"isLocked"`
}
