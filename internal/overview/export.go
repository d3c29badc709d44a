package overview

import (
	"encoding/xml"
	"fmt"
)

type exportInvoice struct {
	XMLName        xml.Name `xml:"Invoice"`
	InvoiceNumber  string   `xml:"InvoiceNumber"`
	InvoiceDate    string   `xml:"InvoiceDate"`
	BatchName      string   `xml:"BatchName"`
	TemplateUsed   string   `xml:"TemplateUsed"`
	TotalValue     float64  `xml:"TotalValue"`
	AccountingInfo string   `xml:"AccountingInfo"`
	CompanyID      string   `xml:"CompanyId"`
}

type exportDocument struct {
	XMLName  xml.Name        `xml:"Invoices"`
	Invoices []exportInvoice `xml:"Invoice"`
}

// ExportXML renders the given invoice records as the XML document the
// downstream accounting import consumes.
func ExportXML(records []InvoiceRecord) ([]byte, error) {
	doc := exportDocument{Invoices: make([]exportInvoice, 0, len(records))}
	for _, r := range records {
		doc.Invoices = append(doc.Invoices, exportInvoice{
			InvoiceNumber:  r.InvoiceNumber,
			InvoiceDate:    r.InvoiceDate,
			BatchName:      r.BatchName,
			TemplateUsed:   r.TemplateUsed,
			TotalValue:     r.TotalValue,
			AccountingInfo: r.AccountingInfo,
			CompanyID:      r.CompanyID,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling invoice export: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
