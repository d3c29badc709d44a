package overview

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ocrdesk/invoice-capture/internal/zone"
)

var _ = Describe("Propagate", func() {
	var (
		batch   BatchInput
		records []InvoiceRecord
		err     error
	)

	BeforeEach(func() {
		batch = BatchInput{
			Name:    "batch-2024-03",
			Profile: "supplier-a",
			SystemValues: map[string]string{
				"ucet":    "311",
				"stredis": "HQ",
			},
			Mapping: FieldMapping{
				InvoiceDateField:   "datVyst",
				InvoiceNumberField: "varSym",
				TotalValueField:    "celkem",
			},
			Pages: []PageInput{
				{
					Filename: "page1.png",
					Zones: []zone.Zone{
						{ID: 1, PropertyName: "varSym"},
						{ID: 2, PropertyName: "datVyst"},
						{ID: 3, PropertyName: "nazev", IsItem: true},
						{ID: 4, PropertyName: "cenaMj", IsItem: true},
						{ID: 5, PropertyName: "mnozMj", IsItem: true},
						{ID: 6, PropertyName: "szbDph", IsItem: true},
						{ID: 7, PropertyName: "nazev_r1", IsItem: true, RowID: 1},
						{ID: 8, PropertyName: "cenaMj_r1", IsItem: true, RowID: 1},
						{ID: 9, PropertyName: "mnozMj_r1", IsItem: true, RowID: 1},
						{ID: 10, PropertyName: "szbDph_r1", IsItem: true, RowID: 1},
					},
					Values: map[string]string{
						"varSym":    "2024001",
						"datVyst":   "5.3.2024",
						"nazev":     "Paper",
						"cenaMj":    "10,00",
						"mnozMj":    "2",
						"szbDph":    "21",
						"nazev_r1":  "Pens",
						"cenaMj_r1": "4",
						"mnozMj_r1": "2",
						"szbDph_r1": "0",
					},
				},
			},
		}
	})

	JustBeforeEach(func() {
		records, err = Propagate(batch)
	})

	When("the batch is complete", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("produces one record per page", func() {
			Expect(records).To(HaveLen(1))
		})

		It("assigns a unique id", func() {
			Expect(records[0].ID).NotTo(BeEmpty())
		})

		It("preserves page order and selects every record", func() {
			Expect(records[0].Order).To(Equal(0))
			Expect(records[0].Selected).To(BeTrue())
		})

		It("carries the batch name and template", func() {
			Expect(records[0].BatchName).To(Equal("batch-2024-03"))
			Expect(records[0].TemplateUsed).To(Equal("supplier-a"))
		})

		It("groups item values into rows", func() {
			Expect(records[0].InvoiceItems).To(HaveLen(2))
			Expect(records[0].InvoiceItems[0]["nazev"]).To(Equal("Paper"))
			Expect(records[0].InvoiceItems[1]["nazev"]).To(Equal("Pens"))
		})

		It("normalizes item decimals", func() {
			Expect(records[0].InvoiceItems[0]["cenaMj"]).To(Equal("10.00"))
		})

		It("leaves item names alone during decimal normalization", func() {
			batchValues := records[0].InvoiceItems[0]
			Expect(batchValues["nazev"]).To(Equal("Paper"))
		})

		It("excludes item keys from the header values", func() {
			Expect(records[0].Values).NotTo(HaveKey("cenaMj"))
			Expect(records[0].Values).NotTo(HaveKey("nazev_r1"))
		})

		It("merges system values under page values", func() {
			Expect(records[0].Values["ucet"]).To(Equal("311"))
			Expect(records[0].Values["stredis"]).To(Equal("HQ"))
		})

		It("normalizes the mapped invoice date", func() {
			Expect(records[0].InvoiceDate).To(Equal("2024-03-05"))
			Expect(records[0].Values["datVyst"]).To(Equal("2024-03-05"))
		})

		It("picks the invoice number from the mapped field", func() {
			Expect(records[0].InvoiceNumber).To(Equal("2024001"))
		})

		It("computes the total from the line items", func() {
			Expect(records[0].TotalValue).To(BeNumerically("~", 10*2*1.21+4*2, 1e-9))
		})

		It("records the source image filename", func() {
			Expect(records[0].ImageFilename).To(Equal("page1.png"))
		})
	})

	When("a page value collides with a system value", func() {
		BeforeEach(func() {
			batch.SystemValues["varSym"] = "from-system"
		})

		It("lets the page value win", func() {
			Expect(records[0].Values["varSym"]).To(Equal("2024001"))
		})
	})

	When("the field mapping is incomplete", func() {
		BeforeEach(func() {
			batch.Mapping.TotalValueField = ""
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})

		It("produces no records", func() {
			Expect(records).To(BeEmpty())
		})
	})

	When("an item value is the OCR empty marker", func() {
		BeforeEach(func() {
			batch.Pages[0].Values["cenaMj"] = "NaN"
		})

		It("contributes zero to the total", func() {
			Expect(records[0].TotalValue).To(BeNumerically("~", 4*2, 1e-9))
		})
	})
})
