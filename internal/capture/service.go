package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/ocrdesk/invoice-capture/internal/ocr"
	"github.com/ocrdesk/invoice-capture/internal/overview"
	"github.com/ocrdesk/invoice-capture/internal/zone"
)

var (
	// ErrNoNamedZones rejects an OCR test request in which every zone
	// still has a blank property name.
	ErrNoNamedZones = errors.New("ocr requires at least one named zone")

	// ErrMissingImage rejects saving a new profile without a preview
	// image.
	ErrMissingImage = errors.New("a preview image is required for a new profile")
)

// Service wires the capture core together: profile and queue
// persistence, the OCR engine, live sessions and the overview store.
type Service struct {
	db        DB
	storage   Storage
	engine    ocr.Engine
	sessions  *SessionManager
	rowOffset float64
}

// NewService creates a Service with the default row offset.
func NewService(db DB, storage Storage, engine ocr.Engine) *Service {
	return &Service{
		db:        db,
		storage:   storage,
		engine:    engine,
		sessions:  NewSessionManager(),
		rowOffset: zone.DefaultRowOffset,
	}
}

// SetRowOffset overrides the vertical spacing used when a repeated
// line-item row is added.
func (s *Service) SetRowOffset(offset float64) {
	if offset > 0 {
		s.rowOffset = offset
	}
}

// RowOffset returns the configured row spacing.
func (s *Service) RowOffset() float64 {
	return s.rowOffset
}

// profileImagePath is where a profile's preview image lives in
// Storage, with an extension matching the uploaded content type.
func profileImagePath(name, contentType string) string {
	return path.Join("profiles", name+imageExtension(contentType))
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// queueImagePath is where a saved queue page image lives in Storage.
func queueImagePath(queue, filename string) string {
	return path.Join("queues", queue, filename)
}

// SaveProfile stores a zone template. The preview image is required
// the first time a profile is saved and optional on later updates.
func (s *Service) SaveProfile(name string, zones []zone.Zone, image []byte, contentType string) error {
	if name == "" {
		return fmt.Errorf("profile name is required")
	}

	existing, getErr := s.db.GetProfile(name)
	if image == nil && getErr != nil {
		return ErrMissingImage
	}

	profile := &Profile{Name: name, Zones: zones}
	if existing != nil {
		profile.ImageFilename = existing.ImageFilename
		profile.ImageContentType = existing.ImageContentType
	}
	if image != nil {
		if contentType == "" {
			contentType = "image/jpeg"
		}
		saved, err := s.storage.Save(profileImagePath(name, contentType), image)
		if err != nil {
			return fmt.Errorf("saving profile image: %w", err)
		}
		profile.ImageFilename = saved
		profile.ImageContentType = contentType
	}

	if err := s.db.SaveProfile(profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// Profile retrieves a zone template by name.
func (s *Service) Profile(name string) (*Profile, error) {
	profile, err := s.db.GetProfile(name)
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return profile, nil
}

// ListProfiles returns every saved zone template.
func (s *Service) ListProfiles() ([]*Profile, error) {
	profiles, err := s.db.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// DeleteProfile removes a template and its preview image.
func (s *Service) DeleteProfile(name string) error {
	profile, err := s.db.GetProfile(name)
	if err != nil {
		return fmt.Errorf("getting profile for deletion: %w", err)
	}
	if profile.ImageFilename != "" {
		if err := s.storage.Delete(profile.ImageFilename); err != nil {
			slog.Warn("Failed to delete profile image", "profile", name, "error", err)
		}
	}
	if err := s.db.DeleteProfile(name); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// ProfileImage returns a profile's preview image.
func (s *Service) ProfileImage(name string) ([]byte, string, error) {
	profile, err := s.db.GetProfile(name)
	if err != nil {
		return nil, "", fmt.Errorf("getting profile: %w", err)
	}
	if profile.ImageFilename == "" {
		return nil, "", fmt.Errorf("profile %s has no preview image", name)
	}
	data, err := s.storage.Get(profile.ImageFilename)
	if err != nil {
		return nil, "", fmt.Errorf("getting profile image: %w", err)
	}
	contentType := profile.ImageContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

// ExportFields returns the full export-template field registry.
func (s *Service) ExportFields() ([]ExportField, error) {
	return s.db.GetExportFields()
}

// SaveExportFields replaces the field registry.
func (s *Service) SaveExportFields(fields []ExportField) error {
	if err := s.db.SaveExportFields(fields); err != nil {
		return fmt.Errorf("saving export fields: %w", err)
	}
	return nil
}

// ActiveFields returns the fields offerable in the zone-naming
// selector.
func (s *Service) ActiveFields() ([]ExportField, error) {
	fields, err := s.db.GetExportFields()
	if err != nil {
		return nil, err
	}
	active := make([]ExportField, 0, len(fields))
	for _, f := range fields {
		if f.Active {
			active = append(active, f)
		}
	}
	return active, nil
}

// TestOCR runs the engine over an ad-hoc image and zone set, used
// while a template is being drawn. Zones without a name cannot be
// extracted, so a request naming none of its zones is rejected.
func (s *Service) TestOCR(ctx context.Context, image []byte, contentType string, zones []zone.Zone) (map[string]string, error) {
	named := false
	for _, z := range zones {
		if strings.TrimSpace(z.PropertyName) != "" {
			named = true
			break
		}
	}
	if !named {
		return nil, ErrNoNamedZones
	}
	return s.engine.Extract(ctx, image, contentType, zones)
}

// StartSession begins a capture batch: every uploaded page gets a deep
// copy of the profile's zones, system values are seeded from the
// field registry's system fields, and an empty field mapping is
// pre-filled with name-based suggestions.
func (s *Service) StartSession(name, profileName string, uploads []Upload) (*Session, error) {
	profile, err := s.db.GetProfile(profileName)
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	session := NewSession(name, profileName, profile.Zones, uploads)

	fields, err := s.db.GetExportFields()
	if err == nil {
		systemValues := make(map[string]string)
		for _, f := range fields {
			if f.System {
				systemValues[f.Name] = ""
			}
		}
		if len(systemValues) > 0 {
			session.SetSystemValues(systemValues)
		}
	}
	session.SetMapping(suggestMapping(zone.NewCollection(profile.Zones).PropertyNames()))

	if err := s.sessions.Put(session); err != nil {
		return nil, err
	}
	return session, nil
}

// suggestMapping guesses the semantic roles from the profile's
// property names: the accounting field names contain recognizable
// stems (datVyst, cisDosle, celkem).
func suggestMapping(propertyNames []string) overview.FieldMapping {
	var m overview.FieldMapping
	for _, name := range propertyNames {
		lower := strings.ToLower(name)
		switch {
		case m.InvoiceDateField == "" && strings.Contains(lower, "dat"):
			m.InvoiceDateField = name
		case m.InvoiceNumberField == "" && strings.Contains(lower, "cis"):
			m.InvoiceNumberField = name
		case m.TotalValueField == "" && strings.Contains(lower, "celk"):
			m.TotalValueField = name
		}
	}
	return m
}

// OpenQueue restores a previously saved batch into a live session,
// replacing any session already open under that name.
func (s *Service) OpenQueue(name string) (*Session, error) {
	queue, err := s.db.GetQueue(name)
	if err != nil {
		return nil, fmt.Errorf("getting queue: %w", err)
	}

	images := make(map[string][]byte, len(queue.Pages))
	for _, snap := range queue.Pages {
		data, err := s.storage.Get(queueImagePath(name, snap.Filename))
		if err != nil {
			slog.Warn("Missing queue page image", "queue", name, "page", snap.Filename, "error", err)
			continue
		}
		images[snap.Filename] = data
	}

	session := restore(queue, images)
	s.sessions.Replace(session)
	return session, nil
}

// Session looks up a live session.
func (s *Service) Session(name string) (*Session, error) {
	return s.sessions.Get(name)
}

// CloseSession discards a live session without saving.
func (s *Service) CloseSession(name string) {
	s.sessions.Delete(name)
}

// SessionNames lists live sessions.
func (s *Service) SessionNames() []string {
	return s.sessions.Names()
}

// OCRPage extracts one page of a session.
func (s *Service) OCRPage(ctx context.Context, sessionName string, pageIndex int) error {
	session, err := s.sessions.Get(sessionName)
	if err != nil {
		return err
	}
	return session.OCRPage(ctx, s.engine, pageIndex)
}

// OCRAll extracts every unlocked page of a session, sequentially.
func (s *Service) OCRAll(ctx context.Context, sessionName string) error {
	session, err := s.sessions.Get(sessionName)
	if err != nil {
		return err
	}
	return session.OCRAll(ctx, s.engine)
}

// SaveSession persists a session as a queue: page images go to
// Storage, the meta and per-page snapshots to the database.
func (s *Service) SaveSession(name string) error {
	session, err := s.sessions.Get(name)
	if err != nil {
		return err
	}

	queue, images := session.snapshot()
	for filename, data := range images {
		if _, err := s.storage.Save(queueImagePath(name, filename), data); err != nil {
			return fmt.Errorf("saving page image %s: %w", filename, err)
		}
	}
	if err := s.db.SaveQueue(queue); err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}

	session.markSaved()
	return nil
}

// Queues lists the saved batches.
func (s *Service) Queues() ([]*Queue, error) {
	queues, err := s.db.ListQueues()
	if err != nil {
		return nil, fmt.Errorf("listing queues: %w", err)
	}
	return queues, nil
}

// Queue retrieves one saved batch.
func (s *Service) Queue(name string) (*Queue, error) {
	queue, err := s.db.GetQueue(name)
	if err != nil {
		return nil, fmt.Errorf("getting queue: %w", err)
	}
	return queue, nil
}

// DeleteQueue removes a saved batch and its page images.
func (s *Service) DeleteQueue(name string) error {
	queue, err := s.db.GetQueue(name)
	if err != nil {
		return fmt.Errorf("getting queue for deletion: %w", err)
	}
	for _, snap := range queue.Pages {
		if err := s.storage.Delete(queueImagePath(name, snap.Filename)); err != nil {
			slog.Warn("Failed to delete queue page image", "queue", name, "page", snap.Filename, "error", err)
		}
	}
	if err := s.db.DeleteQueue(name); err != nil {
		return fmt.Errorf("deleting queue: %w", err)
	}
	return nil
}

// QueueImage returns a saved queue page image and its content type as
// recorded in the page snapshot.
func (s *Service) QueueImage(queueName, filename string) ([]byte, string, error) {
	data, err := s.storage.Get(queueImagePath(queueName, filename))
	if err != nil {
		return nil, "", fmt.Errorf("getting queue image: %w", err)
	}
	contentType := ""
	if queue, err := s.db.GetQueue(queueName); err == nil {
		for _, snap := range queue.Pages {
			if snap.Filename == filename {
				contentType = snap.ContentType
				break
			}
		}
	}
	return data, contentType, nil
}

// PropagateSession normalizes a session's captured values into invoice
// records and stores them in the overview. Returns how many records
// were emitted.
func (s *Service) PropagateSession(name string) (int, error) {
	session, err := s.sessions.Get(name)
	if err != nil {
		return 0, err
	}

	records, err := overview.Propagate(session.propagateInput())
	if err != nil {
		return 0, err
	}
	for i := range records {
		if err := s.db.SaveInvoice(&records[i]); err != nil {
			return 0, fmt.Errorf("saving invoice record: %w", err)
		}
	}

	session.markPropagated()
	return len(records), nil
}

// BatchExportPage is one page of a batch JSON export.
type BatchExportPage struct {
	Filename     string              `json:"filename"`
	Values       map[string]string   `json:"values"`
	Zones        []zone.Zone         `json:"zones"`
	InvoiceItems []map[string]string `json:"invoiceItems"`
}

// BatchExport is the downloadable JSON form of a capture batch, with
// system values merged into each page and line items grouped by row.
type BatchExport struct {
	Name         string            `json:"name"`
	Profile      string            `json:"profile"`
	SystemValues map[string]string `json:"systemValues"`
	Pages        []BatchExportPage `json:"pages"`
}

// ExportBatch builds the batch JSON export for a live session.
func (s *Service) ExportBatch(name string) (*BatchExport, error) {
	session, err := s.sessions.Get(name)
	if err != nil {
		return nil, err
	}

	input := session.propagateInput()
	export := &BatchExport{
		Name:         input.Name,
		Profile:      input.Profile,
		SystemValues: input.SystemValues,
	}
	for _, page := range input.Pages {
		merged := make(map[string]string, len(input.SystemValues)+len(page.Values))
		for k, v := range input.SystemValues {
			merged[k] = v
		}
		for k, v := range page.Values {
			merged[k] = v
		}

		items := make([]map[string]string, 0)
		for _, row := range zone.NewCollection(page.Zones).Rows() {
			item := make(map[string]string, len(row.Cells))
			for header, z := range row.Cells {
				item[header] = page.Values[z.PropertyName]
			}
			items = append(items, item)
		}

		export.Pages = append(export.Pages, BatchExportPage{
			Filename:     page.Filename,
			Values:       merged,
			Zones:        page.Zones,
			InvoiceItems: items,
		})
	}
	return export, nil
}

// Invoices lists the propagated invoice records in batch order.
func (s *Service) Invoices() ([]*overview.InvoiceRecord, error) {
	records, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return records, nil
}

// UpdateInvoice applies a partial update to a stored invoice record.
func (s *Service) UpdateInvoice(id string, patch map[string]json.RawMessage) error {
	record, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice: %w", err)
	}

	current, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(current, &merged); err != nil {
		return fmt.Errorf("unmarshaling invoice: %w", err)
	}
	for k, v := range patch {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("merging invoice update: %w", err)
	}

	var updated overview.InvoiceRecord
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("invalid invoice update: %w", err)
	}
	updated.ID = record.ID
	if err := s.db.SaveInvoice(&updated); err != nil {
		return fmt.Errorf("saving invoice: %w", err)
	}
	return nil
}

// DeleteInvoice removes one invoice record.
func (s *Service) DeleteInvoice(id string) error {
	if _, err := s.db.GetInvoice(id); err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}
	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice: %w", err)
	}
	return nil
}

// ClearInvoices empties the overview store.
func (s *Service) ClearInvoices() error {
	if err := s.db.DeleteAllInvoices(); err != nil {
		return fmt.Errorf("clearing invoices: %w", err)
	}
	return nil
}

// ExportInvoicesXML renders the selected invoice records as the
// accounting-import XML document. Unknown ids are skipped.
func (s *Service) ExportInvoicesXML(ids []string) ([]byte, error) {
	records := make([]overview.InvoiceRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.db.GetInvoice(id)
		if err != nil {
			slog.Warn("Skipping unknown invoice in export", "id", id)
			continue
		}
		records = append(records, *record)
	}
	return overview.ExportXML(records)
}
