package overview

// FieldMapping designates which extracted property plays which
// semantic role when a batch is propagated into invoice records.
type FieldMapping struct {
	InvoiceDateField   string `json:"invoiceDateField"`
	InvoiceNumberField string `json:"invoiceNumberField"`
	TotalValueField    string `json:"totalValueField"`
}

// Complete reports whether all three roles have been assigned.
func (m FieldMapping) Complete() bool {
	return m.InvoiceDateField != "" && m.InvoiceNumberField != "" && m.TotalValueField != ""
}

// InvoiceRecord is one propagated invoice, derived from a captured
// page. Records are independent artifacts once emitted; the capture
// core constructs them but the overview store owns them.
type InvoiceRecord struct {
	ID             string              `json:"id"`
	BatchName      string              `json:"batch_name"`
	Order          int                 `json:"order"`
	Selected       bool                `json:"selected"`
	Values         map[string]string   `json:"values"`
	InvoiceItems   []map[string]string `json:"invoiceItems"`
	SystemValues   map[string]string   `json:"systemValues"`
	AccountingInfo string              `json:"accounting_info"`
	CompanyID      string              `json:"company_id"`
	ImageFilename  string              `json:"imageFilename,omitempty"`
	TemplateUsed   string              `json:"template_used"`
	InvoiceDate    string              `json:"invoice_date"`
	InvoiceNumber  string              `json:"invoice_number"`
	TotalValue     float64             `json:"total_value"`
}
