package overview

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ocrdesk/invoice-capture/internal/zone"
)

// PageInput is one captured page's contribution to propagation: its
// zone collection and the extracted/edited values keyed by property
// name.
type PageInput struct {
	Filename string
	Zones    []zone.Zone
	Values   map[string]string
}

// BatchInput is a finished capture batch ready to be turned into
// invoice records.
type BatchInput struct {
	Name         string
	Profile      string
	SystemValues map[string]string
	Mapping      FieldMapping
	Pages        []PageInput
}

// Propagate converts a captured batch into one canonical invoice
// record per page: item values are grouped into rows, decimals and
// dates are normalized, system values are merged under page values,
// and the total is computed from the line items.
func Propagate(batch BatchInput) ([]InvoiceRecord, error) {
	if !batch.Mapping.Complete() {
		return nil, fmt.Errorf("field mapping is incomplete: date, number and total fields must all be assigned")
	}

	records := make([]InvoiceRecord, 0, len(batch.Pages))
	for idx, page := range batch.Pages {
		items := buildInvoiceItems(page)
		for _, item := range items {
			normalizeItemDecimals(item)
		}

		values := make(map[string]string, len(batch.SystemValues)+len(page.Values))
		for k, v := range batch.SystemValues {
			values[k] = v
		}
		for k, v := range page.Values {
			if IsItemKey(k) {
				continue
			}
			values[k] = v
		}
		for _, key := range dateFieldNames {
			if v, ok := values[key]; ok && v != "" {
				values[key] = NormalizeDate(v)
			}
		}

		records = append(records, InvoiceRecord{
			ID:            uuid.NewString(),
			BatchName:     batch.Name,
			Order:         idx,
			Selected:      true,
			Values:        values,
			InvoiceItems:  items,
			SystemValues:  batch.SystemValues,
			ImageFilename: page.Filename,
			TemplateUsed:  batch.Profile,
			InvoiceDate:   NormalizeDate(page.Values[batch.Mapping.InvoiceDateField]),
			InvoiceNumber: page.Values[batch.Mapping.InvoiceNumberField],
			TotalValue:    TotalValue(items),
		})
	}
	return records, nil
}

// buildInvoiceItems groups a page's item zones into ordered per-row
// dictionaries keyed by column header.
func buildInvoiceItems(page PageInput) []map[string]string {
	rows := zone.NewCollection(page.Zones).Rows()
	items := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		item := make(map[string]string, len(row.Cells))
		for header, z := range row.Cells {
			item[header] = page.Values[z.PropertyName]
		}
		items = append(items, item)
	}
	return items
}
