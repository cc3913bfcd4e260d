package shared

import "fmt"

// Document number prefixes per header family.
const (
	PrefixBOM      = "BOM"
	PrefixBudget   = "BUD"
	PrefixForecast = "FC"
	PrefixGRN      = "GRN"
	PrefixPurchase = "PUR"
	PrefixOrder    = "ORD"
	PrefixQC       = "QC"
	PrefixNCR      = "NCR"
)

// FormatDocumentNumber renders PREFIX-00001 style numbers.
func FormatDocumentNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%05d", prefix, seq)
}
