package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ocrdesk/invoice-capture/internal/geometry"
	"github.com/ocrdesk/invoice-capture/internal/ocr"
	"github.com/ocrdesk/invoice-capture/internal/overview"
	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// State tracks where a capture session is in its lifecycle. Loaded and
// Editing cycle freely; Saved and Propagated are not mutually
// exclusive since a batch can be saved, edited again and re-saved.
type State string

const (
	StateEmpty      State = "empty"
	StateLoaded     State = "loaded"
	StateEditing    State = "editing"
	StateSaved      State = "saved"
	StatePropagated State = "propagated"
)

var (
	// ErrPageLocked is returned when OCR is requested on a locked page.
	ErrPageLocked = errors.New("page is locked")

	// ErrOCRInFlight rejects a second OCR request for a page while one
	// is still outstanding, so two writers never race on the values map.
	ErrOCRInFlight = errors.New("an OCR call for this page is already in flight")

	// ErrPageIndex is returned for an out-of-range page index.
	ErrPageIndex = errors.New("page index out of range")
)

// Session owns the ordered pages of one capture batch and serializes
// every mutation behind its mutex. Zone edits, value edits and OCR
// result application all go through here.
type Session struct {
	mu sync.Mutex

	name         string
	profile      string
	systemValues map[string]string
	mapping      overview.FieldMapping
	pages        []*Page
	state        State
	ocrBusy      map[int]bool
}

// NewSession builds a session over the given pages. Every page
// receives its own deep copy of the profile's zone collection so edits
// to one page never leak into another page or the template.
func NewSession(name, profile string, templateZones []zone.Zone, uploads []Upload) *Session {
	s := &Session{
		name:         name,
		profile:      profile,
		systemValues: make(map[string]string),
		state:        StateEmpty,
		ocrBusy:      make(map[int]bool),
	}
	template := zone.NewCollection(templateZones)
	for _, u := range uploads {
		s.pages = append(s.pages, &Page{
			Filename:    u.Filename,
			ContentType: u.ContentType,
			Image:       u.Data,
			Zones:       template.Clone(),
			Values:      make(map[string]string),
		})
	}
	if len(s.pages) > 0 {
		s.state = StateLoaded
	}
	return s
}

// restore rebuilds a session from a saved queue; each page keeps the
// zones and values it was saved with.
func restore(q *Queue, images map[string][]byte) *Session {
	s := &Session{
		name:         q.Name,
		profile:      q.Profile,
		systemValues: q.SystemValues,
		mapping:      q.FieldMapping,
		state:        StateLoaded,
		ocrBusy:      make(map[int]bool),
	}
	if s.systemValues == nil {
		s.systemValues = make(map[string]string)
	}
	for _, snap := range q.Pages {
		values := snap.Values
		if values == nil {
			values = make(map[string]string)
		}
		s.pages = append(s.pages, &Page{
			Filename:    snap.Filename,
			ContentType: snap.ContentType,
			Image:       images[snap.Filename],
			Zones:       zone.NewCollection(snap.Zones),
			Values:      values,
		})
	}
	if len(s.pages) == 0 {
		s.state = StateEmpty
	}
	return s
}

// Name returns the batch name.
func (s *Session) Name() string {
	return s.name
}

// Profile returns the profile (template) this batch was captured with.
func (s *Session) Profile() string {
	return s.profile
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PageCount returns the number of pages in the batch.
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// markEditing must be called with the lock held.
func (s *Session) markEditing() {
	s.state = StateEditing
}

func (s *Session) page(index int) (*Page, error) {
	if index < 0 || index >= len(s.pages) {
		return nil, ErrPageIndex
	}
	return s.pages[index], nil
}

// CreateZone draws a new zone on a page. The rectangle comes from a
// normalized drag-draw gesture in image space.
func (s *Session) CreateZone(pageIndex int, rect geometry.Rect, propertyName string) (zone.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return zone.Zone{}, err
	}
	if propertyName != "" && p.Zones.HasProperty(propertyName) {
		return zone.Zone{}, zone.ErrNameTaken
	}
	s.markEditing()
	return p.Zones.Create(rect, propertyName), nil
}

// MoveZone repositions a zone on a page.
func (s *Session) MoveZone(pageIndex, zoneID int, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	s.markEditing()
	p.Zones.Move(zoneID, x, y)
	return nil
}

// ApplyMoveDelta moves every zone on a page except the one that was
// just dragged, compensating scan skew in one gesture. The dragged
// zone is excluded by id: it already sits at its dragged position, and
// the delta applied is the one recorded at drag end.
func (s *Session) ApplyMoveDelta(pageIndex int, dx, dy float64, excludeZoneID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	s.markEditing()
	p.Zones.ApplyDelta(dx, dy, excludeZoneID)
	return nil
}

// ResizeZone applies one resize step to a zone.
func (s *Session) ResizeZone(pageIndex, zoneID int, direction zone.ResizeDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	s.markEditing()
	p.Zones.Resize(zoneID, direction)
	return nil
}

// RenameZone binds a zone to a property name, rejecting names already
// used by another zone on the same page.
func (s *Session) RenameZone(pageIndex, zoneID int, propertyName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	if err := p.Zones.Rename(zoneID, propertyName); err != nil {
		return err
	}
	s.markEditing()
	return nil
}

// DeleteZone removes a zone from a page.
func (s *Session) DeleteZone(pageIndex, zoneID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	s.markEditing()
	p.Zones.Delete(zoneID)
	return nil
}

// ToggleItemZone flips a zone's line-item flag.
func (s *Session) ToggleItemZone(pageIndex, zoneID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	s.markEditing()
	p.Zones.ToggleItem(zoneID)
	return nil
}

// AddItemRow duplicates the page's template row into a new repeated
// row and returns the created zones.
func (s *Session) AddItemRow(pageIndex int, rowOffset float64) ([]zone.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return nil, err
	}
	if rowOffset <= 0 {
		rowOffset = zone.DefaultRowOffset
	}
	s.markEditing()
	return p.Zones.AddRow(rowOffset), nil
}

// DeleteItemRow removes a repeated row from a page and prunes any
// values left orphaned by the removed zones.
func (s *Session) DeleteItemRow(pageIndex, rowID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	removed, err := p.Zones.DeleteRow(rowID)
	if err != nil {
		return err
	}
	for _, name := range removed {
		if !p.Zones.HasProperty(name) {
			delete(p.Values, name)
		}
	}
	s.markEditing()
	return nil
}

// SetValue records a manual edit of one extracted field. Manual edits
// are allowed even on locked pages; locking only fences off OCR.
func (s *Session) SetValue(pageIndex int, property, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	s.markEditing()
	p.Values[property] = value
	return nil
}

// SetLocked locks or unlocks a page against OCR.
func (s *Session) SetLocked(pageIndex int, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return err
	}
	p.Locked = locked
	return nil
}

// SetSystemValues replaces the operator-entered constants applied to
// every page of the batch.
func (s *Session) SetSystemValues(values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if values == nil {
		values = make(map[string]string)
	}
	s.systemValues = values
	s.markEditing()
}

// SetMapping assigns the semantic roles used during propagation.
func (s *Session) SetMapping(m overview.FieldMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapping = m
	s.markEditing()
}

// Mapping returns the current field mapping.
func (s *Session) Mapping() overview.FieldMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping
}

// OCRPage runs the engine over one page's zones and overwrites the
// returned keys in the page's values. Keys absent from the result keep
// their prior value; on error the values are left exactly as they
// were. Locked pages are rejected, and per-page re-entry is blocked
// while a call is outstanding.
func (s *Session) OCRPage(ctx context.Context, engine ocr.Engine, pageIndex int) error {
	s.mu.Lock()
	p, err := s.page(pageIndex)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if p.Locked {
		s.mu.Unlock()
		return ErrPageLocked
	}
	if s.ocrBusy[pageIndex] {
		s.mu.Unlock()
		return ErrOCRInFlight
	}
	s.ocrBusy[pageIndex] = true
	image := p.Image
	contentType := p.ContentType
	zones := p.Zones.Zones()
	s.mu.Unlock()

	results, err := engine.Extract(ctx, image, contentType, zones)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ocrBusy, pageIndex)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}
	for property, text := range results {
		p.Values[property] = text
	}
	s.markEditing()
	return nil
}

// OCRAll runs OCR over every unlocked page, strictly sequentially, to
// bound load on the OCR service and keep result application order
// deterministic. Locked pages are skipped entirely.
func (s *Session) OCRAll(ctx context.Context, engine ocr.Engine) error {
	count := s.PageCount()
	for i := 0; i < count; i++ {
		s.mu.Lock()
		locked := s.pages[i].Locked
		s.mu.Unlock()
		if locked {
			slog.Info("Skipping locked page", "batch", s.name, "page", i)
			continue
		}
		if err := s.OCRPage(ctx, engine, i); err != nil {
			return fmt.Errorf("ocr on page %d: %w", i, err)
		}
	}
	return nil
}

// Upload is one page image handed to a new session.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// snapshot captures the session as a persistable queue plus the image
// blobs keyed by filename.
func (s *Session) snapshot() (*Queue, map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := &Queue{
		Name:         s.name,
		Profile:      s.profile,
		SystemValues: s.systemValues,
		FieldMapping: s.mapping,
	}
	images := make(map[string][]byte, len(s.pages))
	for _, p := range s.pages {
		q.Pages = append(q.Pages, p.snapshot())
		if p.Image != nil {
			images[p.Filename] = p.Image
		}
	}
	return q, images
}

// markSaved is called by the service after a successful persist.
func (s *Session) markSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateSaved
}

// propagateInput assembles the batch for the propagation normalizer.
func (s *Session) propagateInput() overview.BatchInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := overview.BatchInput{
		Name:         s.name,
		Profile:      s.profile,
		SystemValues: s.systemValues,
		Mapping:      s.mapping,
	}
	for _, p := range s.pages {
		values := make(map[string]string, len(p.Values))
		for k, v := range p.Values {
			values[k] = v
		}
		in.Pages = append(in.Pages, overview.PageInput{
			Filename: p.Filename,
			Zones:    p.Zones.Zones(),
			Values:   values,
		})
	}
	return in
}

// markPropagated is called by the service after records are stored.
func (s *Session) markPropagated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StatePropagated
}

// View reports the session in its API shape.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		Name:         s.name,
		Profile:      s.profile,
		State:        s.state,
		SystemValues: s.systemValues,
		FieldMapping: s.mapping,
	}
	for i, p := range s.pages {
		values := make(map[string]string, len(p.Values))
		for k, val := range p.Values {
			values[k] = val
		}
		v.Pages = append(v.Pages, PageView{
			Filename: p.Filename,
			ImageURL: fmt.Sprintf("/api/sessions/%s/pages/%d/image", s.name, i),
			Zones:    p.Zones.Zones(),
			Values:   values,
			IsLocked: p.Locked,
		})
	}
	return v
}

// PageImage returns a page's raw image bytes and content type.
func (s *Session) PageImage(pageIndex int) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.page(pageIndex)
	if err != nil {
		return nil, "", err
	}
	return p.Image, p.ContentType, nil
}

// SessionView is the JSON shape of a session reported to API clients.
type SessionView struct {
	Name         string                `json:"name"`
	Profile      string                `json:"profile"`
	State        State                 `json:"state"`
	SystemValues map[string]string     `json:"systemValues"`
	FieldMapping overview.FieldMapping `json:"fieldMapping"`
	Pages        []PageView            `json:"pages"`
}
