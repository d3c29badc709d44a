package capture

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ocrdesk/invoice-capture/internal/overview"
	"github.com/ocrdesk/invoice-capture/internal/zone"
)

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("profiles", func() {
		var profile *Profile

		BeforeEach(func() {
			profile = &Profile{
				Name: "supplier-a",
				Zones: []zone.Zone{
					{ID: 1, X: 10, Y: 10, Width: 100, Height: 20, PropertyName: "varSym"},
				},
				ImageFilename: "profiles/supplier-a.jpg",
			}
			Expect(db.SaveProfile(profile)).To(Succeed())
		})

		It("round-trips a profile", func() {
			saved, err := db.GetProfile("supplier-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Name).To(Equal("supplier-a"))
			Expect(saved.Zones).To(HaveLen(1))
			Expect(saved.Zones[0].PropertyName).To(Equal("varSym"))
		})

		It("sets created and updated timestamps", func() {
			saved, err := db.GetProfile("supplier-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Created).NotTo(BeZero())
			Expect(saved.Updated).NotTo(BeZero())
		})

		It("preserves the creation time across updates", func() {
			first, err := db.GetProfile("supplier-a")
			Expect(err).NotTo(HaveOccurred())

			Expect(db.SaveProfile(&Profile{Name: "supplier-a"})).To(Succeed())
			second, err := db.GetProfile("supplier-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Created).To(BeTemporally("==", first.Created))
		})

		It("lists profiles sorted by name", func() {
			Expect(db.SaveProfile(&Profile{Name: "alpha"})).To(Succeed())
			profiles, err := db.ListProfiles()
			Expect(err).NotTo(HaveOccurred())
			Expect(profiles).To(HaveLen(2))
			Expect(profiles[0].Name).To(Equal("alpha"))
			Expect(profiles[1].Name).To(Equal("supplier-a"))
		})

		It("deletes a profile", func() {
			Expect(db.DeleteProfile("supplier-a")).To(Succeed())
			_, err := db.GetProfile("supplier-a")
			Expect(err).To(HaveOccurred())
		})

		It("errors on an unknown profile", func() {
			_, err := db.GetProfile("missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("queues", func() {
		var queue *Queue

		BeforeEach(func() {
			queue = &Queue{
				Name:         "batch-1",
				Profile:      "supplier-a",
				SystemValues: map[string]string{"ucet": "311"},
				FieldMapping: overview.FieldMapping{InvoiceDateField: "datVyst"},
				Pages: []PageSnapshot{
					{
						Filename:    "page1.png",
						ContentType: "image/png",
						Zones:       []zone.Zone{{ID: 1, PropertyName: "varSym"}},
						Values:      map[string]string{"varSym": "2024001"},
					},
				},
			}
			Expect(db.SaveQueue(queue)).To(Succeed())
		})

		It("round-trips a queue with its page snapshots", func() {
			saved, err := db.GetQueue("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Profile).To(Equal("supplier-a"))
			Expect(saved.SystemValues).To(HaveKeyWithValue("ucet", "311"))
			Expect(saved.FieldMapping.InvoiceDateField).To(Equal("datVyst"))
			Expect(saved.Pages).To(HaveLen(1))
			Expect(saved.Pages[0].ContentType).To(Equal("image/png"))
			Expect(saved.Pages[0].Values).To(HaveKeyWithValue("varSym", "2024001"))
		})

		It("lists queues sorted by name", func() {
			Expect(db.SaveQueue(&Queue{Name: "aaa"})).To(Succeed())
			queues, err := db.ListQueues()
			Expect(err).NotTo(HaveOccurred())
			Expect(queues[0].Name).To(Equal("aaa"))
		})

		It("deletes a queue", func() {
			Expect(db.DeleteQueue("batch-1")).To(Succeed())
			_, err := db.GetQueue("batch-1")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("export fields", func() {
		When("no registry has been saved", func() {
			It("returns an empty list without error", func() {
				fields, err := db.GetExportFields()
				Expect(err).NotTo(HaveOccurred())
				Expect(fields).To(BeEmpty())
			})
		})

		When("a registry is saved", func() {
			BeforeEach(func() {
				Expect(db.SaveExportFields([]ExportField{
					{Name: "varSym", Label: "Variable symbol", Active: true},
					{Name: "ucet", Label: "Account", System: true},
				})).To(Succeed())
			})

			It("round-trips the registry", func() {
				fields, err := db.GetExportFields()
				Expect(err).NotTo(HaveOccurred())
				Expect(fields).To(HaveLen(2))
				Expect(fields[0].Name).To(Equal("varSym"))
				Expect(fields[1].System).To(BeTrue())
			})

			It("replaces the registry on the next save", func() {
				Expect(db.SaveExportFields([]ExportField{{Name: "only"}})).To(Succeed())
				fields, err := db.GetExportFields()
				Expect(err).NotTo(HaveOccurred())
				Expect(fields).To(HaveLen(1))
			})
		})
	})

	Describe("invoices", func() {
		BeforeEach(func() {
			Expect(db.SaveInvoice(&overview.InvoiceRecord{ID: "inv-2", Order: 1})).To(Succeed())
			Expect(db.SaveInvoice(&overview.InvoiceRecord{ID: "inv-1", Order: 0, InvoiceNumber: "2024001"})).To(Succeed())
		})

		It("round-trips a record", func() {
			saved, err := db.GetInvoice("inv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.InvoiceNumber).To(Equal("2024001"))
		})

		It("lists records in batch order", func() {
			records, err := db.ListInvoices()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].ID).To(Equal("inv-1"))
			Expect(records[1].ID).To(Equal("inv-2"))
		})

		It("deletes one record", func() {
			Expect(db.DeleteInvoice("inv-1")).To(Succeed())
			records, err := db.ListInvoices()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})

		It("deletes all records", func() {
			Expect(db.DeleteAllInvoices()).To(Succeed())
			records, err := db.ListInvoices()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("allows new records after a clear", func() {
			Expect(db.DeleteAllInvoices()).To(Succeed())
			Expect(db.SaveInvoice(&overview.InvoiceRecord{ID: "inv-3"})).To(Succeed())
			records, err := db.ListInvoices()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})
	})
})
