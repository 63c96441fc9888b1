package parser

import (
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

// Parser turns comparison site documents into typed values. Implementations
// never touch the network.
type Parser interface {
	ParseComparison(html string, columns []Column) ([]*models.RawDeviceRecord, error)
	ColumnLinks(html string) ([]string, error)
	ParseAutocomplete(html string) ([]models.AutocompleteOption, error)
}
