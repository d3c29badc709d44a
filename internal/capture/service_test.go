package capture

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ocrdesk/invoice-capture/internal/overview"
	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// mockDB is a mock implementation of DB
type mockDB struct {
	profiles map[string]*Profile
	queues   map[string]*Queue
	fields   []ExportField
	invoices map[string]*overview.InvoiceRecord

	saveProfileErr error
	saveQueueErr   error
	saveInvoiceErr error
	fieldsErr      error
}

func newMockDB() *mockDB {
	return &mockDB{
		profiles: make(map[string]*Profile),
		queues:   make(map[string]*Queue),
		invoices: make(map[string]*overview.InvoiceRecord),
	}
}

func (m *mockDB) SaveProfile(profile *Profile) error {
	if m.saveProfileErr != nil {
		return m.saveProfileErr
	}
	m.profiles[profile.Name] = profile
	return nil
}

func (m *mockDB) GetProfile(name string) (*Profile, error) {
	p, ok := m.profiles[name]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return p, nil
}

func (m *mockDB) ListProfiles() ([]*Profile, error) {
	profiles := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (m *mockDB) DeleteProfile(name string) error {
	if _, ok := m.profiles[name]; !ok {
		return errors.New("profile not found")
	}
	delete(m.profiles, name)
	return nil
}

func (m *mockDB) SaveQueue(queue *Queue) error {
	if m.saveQueueErr != nil {
		return m.saveQueueErr
	}
	m.queues[queue.Name] = queue
	return nil
}

func (m *mockDB) GetQueue(name string) (*Queue, error) {
	q, ok := m.queues[name]
	if !ok {
		return nil, errors.New("queue not found")
	}
	return q, nil
}

func (m *mockDB) ListQueues() ([]*Queue, error) {
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	return queues, nil
}

func (m *mockDB) DeleteQueue(name string) error {
	if _, ok := m.queues[name]; !ok {
		return errors.New("queue not found")
	}
	delete(m.queues, name)
	return nil
}

func (m *mockDB) SaveExportFields(fields []ExportField) error {
	m.fields = fields
	return nil
}

func (m *mockDB) GetExportFields() ([]ExportField, error) {
	if m.fieldsErr != nil {
		return nil, m.fieldsErr
	}
	return m.fields, nil
}

func (m *mockDB) SaveInvoice(record *overview.InvoiceRecord) error {
	if m.saveInvoiceErr != nil {
		return m.saveInvoiceErr
	}
	m.invoices[record.ID] = record
	return nil
}

func (m *mockDB) GetInvoice(id string) (*overview.InvoiceRecord, error) {
	r, ok := m.invoices[id]
	if !ok {
		return nil, errors.New("invoice not found")
	}
	return r, nil
}

func (m *mockDB) ListInvoices() ([]*overview.InvoiceRecord, error) {
	records := make([]*overview.InvoiceRecord, 0, len(m.invoices))
	for _, r := range m.invoices {
		records = append(records, r)
	}
	return records, nil
}

func (m *mockDB) DeleteInvoice(id string) error {
	if _, ok := m.invoices[id]; !ok {
		return errors.New("invoice not found")
	}
	delete(m.invoices, id)
	return nil
}

func (m *mockDB) DeleteAllInvoices() error {
	m.invoices = make(map[string]*overview.InvoiceRecord)
	return nil
}

func (m *mockDB) Close() error {
	return nil
}

// mockStorage is a mock implementation of Storage
type mockStorage struct {
	files   map[string][]byte
	saveErr error
	getErr  error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(path string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.files[path] = data
	return path, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	if _, ok := m.files[path]; !ok {
		return errors.New("file not found")
	}
	delete(m.files, path)
	return nil
}

var _ = Describe("Service", func() {
	var (
		db      *mockDB
		storage *mockStorage
		engine  *mockEngine
		service *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		engine = newMockEngine()
		service = NewService(db, storage, engine)
	})

	Describe("SaveProfile", func() {
		var (
			image []byte
			err   error
		)

		BeforeEach(func() {
			image = []byte("preview")
		})

		JustBeforeEach(func() {
			err = service.SaveProfile("supplier-a", templateZones(), image, "image/jpeg")
		})

		When("the profile is new", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("stores the template", func() {
				Expect(db.profiles).To(HaveKey("supplier-a"))
				Expect(db.profiles["supplier-a"].Zones).To(HaveLen(4))
			})

			It("stores the preview image", func() {
				Expect(storage.files).To(HaveKey("profiles/supplier-a.jpg"))
			})
		})

		When("the profile is new and no image is given", func() {
			BeforeEach(func() {
				image = nil
			})

			It("returns ErrMissingImage", func() {
				Expect(err).To(MatchError(ErrMissingImage))
			})
		})

		When("the profile already exists and no image is given", func() {
			BeforeEach(func() {
				Expect(service.SaveProfile("supplier-a", nil, []byte("old"), "image/jpeg")).To(Succeed())
				image = nil
			})

			It("updates the zones without touching the image", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(db.profiles["supplier-a"].Zones).To(HaveLen(4))
				Expect(storage.files["profiles/supplier-a.jpg"]).To(Equal([]byte("old")))
			})
		})

		When("the preview is a PNG", func() {
			It("stores the image with a matching extension and serves it back typed", func() {
				Expect(service.SaveProfile("supplier-b", templateZones(), []byte("png-bytes"), "image/png")).To(Succeed())
				Expect(storage.files).To(HaveKey("profiles/supplier-b.png"))

				_, contentType, err := service.ProfileImage("supplier-b")
				Expect(err).NotTo(HaveOccurred())
				Expect(contentType).To(Equal("image/png"))
			})
		})
	})

	Describe("TestOCR", func() {
		It("rejects a request where every zone is unnamed", func() {
			zones := []zone.Zone{{ID: 1}, {ID: 2, PropertyName: "  "}}
			_, err := service.TestOCR(context.Background(), []byte("img"), "image/png", zones)
			Expect(err).To(MatchError(ErrNoNamedZones))
			Expect(engine.callCount()).To(BeZero())
		})

		It("extracts when at least one zone is named", func() {
			zones := []zone.Zone{{ID: 1}, {ID: 2, PropertyName: "varSym"}}
			results, err := service.TestOCR(context.Background(), []byte("img"), "image/png", zones)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveKeyWithValue("varSym", "2024001"))
		})
	})

	Describe("StartSession", func() {
		var (
			session *Session
			err     error
		)

		BeforeEach(func() {
			db.profiles["supplier-a"] = &Profile{Name: "supplier-a", Zones: templateZones()}
			db.fields = []ExportField{
				{Name: "varSym", Active: true},
				{Name: "ucet", Active: true, System: true},
			}
		})

		JustBeforeEach(func() {
			session, err = service.StartSession("batch-1", "supplier-a", testUploads())
		})

		When("the profile exists", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("registers the session", func() {
				Expect(service.SessionNames()).To(ContainElement("batch-1"))
			})

			It("seeds system values from the field registry", func() {
				Expect(session.View().SystemValues).To(HaveKey("ucet"))
			})

			It("suggests a date mapping from the property names", func() {
				Expect(session.Mapping().InvoiceDateField).To(Equal("datVyst"))
			})

			It("gives every page the profile's zones", func() {
				Expect(session.View().Pages[0].Zones).To(HaveLen(4))
			})
		})

		When("the profile does not exist", func() {
			BeforeEach(func() {
				delete(db.profiles, "supplier-a")
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("a session with the name is already open", func() {
			BeforeEach(func() {
				_, firstErr := service.StartSession("batch-1", "supplier-a", testUploads())
				Expect(firstErr).NotTo(HaveOccurred())
			})

			It("returns ErrSessionExists", func() {
				Expect(err).To(MatchError(ErrSessionExists))
			})
		})
	})

	Describe("suggestMapping", func() {
		It("assigns roles by name stems", func() {
			m := suggestMapping([]string{"cisDosle", "celkem", "datVyst"})
			Expect(m.InvoiceDateField).To(Equal("datVyst"))
			Expect(m.InvoiceNumberField).To(Equal("cisDosle"))
			Expect(m.TotalValueField).To(Equal("celkem"))
		})

		It("leaves unmatched roles empty", func() {
			m := suggestMapping([]string{"varSym"})
			Expect(m.InvoiceDateField).To(BeEmpty())
		})
	})

	Describe("SaveSession and OpenQueue", func() {
		BeforeEach(func() {
			db.profiles["supplier-a"] = &Profile{Name: "supplier-a", Zones: templateZones()}
			session, err := service.StartSession("batch-1", "supplier-a", testUploads())
			Expect(err).NotTo(HaveOccurred())
			Expect(session.SetValue(0, "varSym", "2024001")).To(Succeed())
		})

		It("persists the queue and page images", func() {
			Expect(service.SaveSession("batch-1")).To(Succeed())

			Expect(db.queues).To(HaveKey("batch-1"))
			Expect(db.queues["batch-1"].Pages).To(HaveLen(2))
			Expect(storage.files).To(HaveKey("queues/batch-1/page1.png"))
			Expect(storage.files).To(HaveKey("queues/batch-1/page2.png"))
		})

		It("marks the session saved", func() {
			Expect(service.SaveSession("batch-1")).To(Succeed())
			session, _ := service.Session("batch-1")
			Expect(session.State()).To(Equal(StateSaved))
		})

		It("restores the saved state when reopened", func() {
			Expect(service.SaveSession("batch-1")).To(Succeed())
			service.CloseSession("batch-1")

			restored, err := service.OpenQueue("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.PageCount()).To(Equal(2))
			Expect(restored.View().Pages[0].Values).To(HaveKeyWithValue("varSym", "2024001"))
		})

		It("keeps the page content type across save and reopen", func() {
			uploads := []Upload{
				{Filename: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 fake")},
			}
			_, err := service.StartSession("batch-pdf", "supplier-a", uploads)
			Expect(err).NotTo(HaveOccurred())
			Expect(service.SaveSession("batch-pdf")).To(Succeed())
			service.CloseSession("batch-pdf")

			Expect(db.queues["batch-pdf"].Pages[0].ContentType).To(Equal("application/pdf"))

			_, err = service.OpenQueue("batch-pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(service.OCRPage(context.Background(), "batch-pdf", 0)).To(Succeed())
			Expect(engine.lastContentType).To(Equal("application/pdf"))
			Expect(engine.lastImage).To(Equal([]byte("%PDF-1.4 fake")))
		})

		It("replaces a live session when its queue is reopened", func() {
			Expect(service.SaveSession("batch-1")).To(Succeed())

			restored, err := service.OpenQueue("batch-1")
			Expect(err).NotTo(HaveOccurred())
			current, _ := service.Session("batch-1")
			Expect(current).To(BeIdenticalTo(restored))
		})

		When("the session does not exist", func() {
			It("returns ErrSessionNotFound", func() {
				Expect(service.SaveSession("missing")).To(MatchError(ErrSessionNotFound))
			})
		})
	})

	Describe("PropagateSession", func() {
		var session *Session

		BeforeEach(func() {
			db.profiles["supplier-a"] = &Profile{Name: "supplier-a", Zones: templateZones()}
			var err error
			session, err = service.StartSession("batch-1", "supplier-a", testUploads())
			Expect(err).NotTo(HaveOccurred())
			session.SetMapping(overview.FieldMapping{
				InvoiceDateField:   "datVyst",
				InvoiceNumberField: "varSym",
				TotalValueField:    "celkem",
			})
			Expect(session.SetValue(0, "varSym", "2024001")).To(Succeed())
			Expect(session.SetValue(0, "datVyst", "5.3.2024")).To(Succeed())
		})

		It("stores one invoice record per page", func() {
			count, err := service.PropagateSession("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
			Expect(db.invoices).To(HaveLen(2))
		})

		It("marks the session propagated", func() {
			_, err := service.PropagateSession("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.State()).To(Equal(StatePropagated))
		})

		When("the mapping is incomplete", func() {
			BeforeEach(func() {
				session.SetMapping(overview.FieldMapping{})
			})

			It("returns an error and stores nothing", func() {
				_, err := service.PropagateSession("batch-1")
				Expect(err).To(HaveOccurred())
				Expect(db.invoices).To(BeEmpty())
			})
		})
	})

	Describe("ExportBatch", func() {
		BeforeEach(func() {
			db.profiles["supplier-a"] = &Profile{Name: "supplier-a", Zones: templateZones()}
			session, err := service.StartSession("batch-1", "supplier-a", testUploads())
			Expect(err).NotTo(HaveOccurred())
			session.SetSystemValues(map[string]string{"ucet": "311"})
			Expect(session.SetValue(0, "varSym", "2024001")).To(Succeed())
			Expect(session.SetValue(0, "nazev", "Paper")).To(Succeed())
		})

		It("merges system values into each page", func() {
			export, err := service.ExportBatch("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(export.Pages[0].Values).To(HaveKeyWithValue("ucet", "311"))
			Expect(export.Pages[0].Values).To(HaveKeyWithValue("varSym", "2024001"))
			Expect(export.Pages[1].Values).To(HaveKeyWithValue("ucet", "311"))
		})

		It("groups item values into rows", func() {
			export, err := service.ExportBatch("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(export.Pages[0].InvoiceItems).To(HaveLen(1))
			Expect(export.Pages[0].InvoiceItems[0]).To(HaveKeyWithValue("nazev", "Paper"))
		})
	})

	Describe("UpdateInvoice", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = &overview.InvoiceRecord{
				ID:            "inv-1",
				InvoiceNumber: "2024001",
				TotalValue:    100,
			}
		})

		It("merges the patch into the stored record", func() {
			patch := map[string]json.RawMessage{
				"invoice_number": json.RawMessage(`"2024099"`),
			}
			Expect(service.UpdateInvoice("inv-1", patch)).To(Succeed())
			Expect(db.invoices["inv-1"].InvoiceNumber).To(Equal("2024099"))
			Expect(db.invoices["inv-1"].TotalValue).To(Equal(100.0))
		})

		It("preserves the record id even if the patch tries to change it", func() {
			patch := map[string]json.RawMessage{
				"id": json.RawMessage(`"other"`),
			}
			Expect(service.UpdateInvoice("inv-1", patch)).To(Succeed())
			Expect(db.invoices["inv-1"].ID).To(Equal("inv-1"))
		})

		It("fails for an unknown id", func() {
			Expect(service.UpdateInvoice("missing", nil)).To(HaveOccurred())
		})
	})

	Describe("ExportInvoicesXML", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = &overview.InvoiceRecord{
				ID:            "inv-1",
				BatchName:     "batch-1",
				InvoiceNumber: "2024001",
				InvoiceDate:   "2024-03-05",
				TotalValue:    121,
			}
		})

		It("renders the selected records", func() {
			data, err := service.ExportInvoicesXML([]string{"inv-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("<InvoiceNumber>2024001</InvoiceNumber>"))
		})

		It("skips unknown ids", func() {
			data, err := service.ExportInvoicesXML([]string{"missing", "inv-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Count(string(data), "<Invoice>")).To(Equal(1))
		})
	})

	Describe("DeleteQueue", func() {
		BeforeEach(func() {
			db.queues["batch-1"] = &Queue{
				Name:  "batch-1",
				Pages: []PageSnapshot{{Filename: "page1.png"}},
			}
			storage.files["queues/batch-1/page1.png"] = []byte("img")
		})

		It("removes the queue and its images", func() {
			Expect(service.DeleteQueue("batch-1")).To(Succeed())
			Expect(db.queues).NotTo(HaveKey("batch-1"))
			Expect(storage.files).NotTo(HaveKey("queues/batch-1/page1.png"))
		})
	})
})
