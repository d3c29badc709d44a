package overview

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// itemFieldNames are the accounting field names that belong to invoice
// line items. A page value whose key starts with one of these belongs
// to the item table, everything else is a header value.
var itemFieldNames = []string{
	"nazev",     // item name
	"cenaMj",    // unit price
	"mnozMj",    // quantity
	"szbDph",    // VAT rate
	"slevaMnoz", // quantity discount
	"slevaPol",  // line discount
	"slevaDokl", // document discount
}

// dateFieldNames are the header values that carry dates (issue date
// and due date) and get normalized during propagation.
var dateFieldNames = []string{"datVyst", "datSplat"}

var datePattern = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})`)

// IsItemKey reports whether a page value key belongs to the invoice
// item table, including row-suffixed variants like "cenaMj_r2".
func IsItemKey(key string) bool {
	for _, name := range itemFieldNames {
		if strings.HasPrefix(key, name) {
			return true
		}
	}
	return false
}

// NormalizeDate parses a day/month/year date written with dot, slash
// or dash separators into YYYY-MM-DD. Two-digit years are taken as
// 20YY. Anything that does not match passes through unchanged so a bad
// scan never blocks propagation.
func NormalizeDate(input string) string {
	m := datePattern.FindStringSubmatch(input)
	if m == nil {
		return input
	}
	day, month, year := m[1], m[2], m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	return fmt.Sprintf("%s-%02s-%02s", year, month, day)
}

// NormalizeDecimal replaces a decimal comma with a decimal point,
// fixing up locale formatting on extracted amounts. Other characters
// are left untouched.
func NormalizeDecimal(val string) string {
	return strings.Replace(val, ",", ".", 1)
}

// parseAmount interprets an extracted numeric string, treating
// unparsable input as zero. ParseFloat accepts the literal "NaN" that
// the OCR engines emit for empty zones, so non-finite results are also
// treated as zero.
func parseAmount(val string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(NormalizeDecimal(val)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// TotalValue sums unitPrice * quantity * (1 + vatRate/100) over the
// invoice items.
func TotalValue(items []map[string]string) float64 {
	var total float64
	for _, item := range items {
		price := parseAmount(item["cenaMj"])
		qty := parseAmount(item["mnozMj"])
		vat := parseAmount(item["szbDph"])
		total += price * qty * (1 + vat/100)
	}
	return total
}

// normalizeItemDecimals applies the decimal fix-up to every numeric
// item field in place. The item name is the one field left alone.
func normalizeItemDecimals(item map[string]string) {
	for _, key := range itemFieldNames {
		if key == "nazev" {
			continue
		}
		if v, ok := item[key]; ok && v != "" {
			item[key] = NormalizeDecimal(v)
		}
	}
}
