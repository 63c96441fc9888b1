package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

// ComparisonParser extracts device records from a comparison page using the
// declarative field table.
type ComparisonParser struct {
	fields []FieldSpec
}

func NewComparisonParser() *ComparisonParser {
	return &ComparisonParser{fields: Fields}
}

// ColumnLinks returns the per-column link targets of a comparison page.
func (p *ComparisonParser) ColumnLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return ColumnLinks(doc), nil
}

// ParseComparison builds one record per column, in the order the columns are
// given. Each field is applied to an accumulator keyed by the column's slug,
// so a field array shorter than the column count leaves later devices null.
func (p *ComparisonParser) ParseComparison(html string, columns []Column) ([]*models.RawDeviceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	acc := make(map[string]*models.RawDeviceRecord, len(columns))
	for _, col := range columns {
		acc[col.Slug] = newRecord(col.Slug, html)
	}

	names := columnNames(doc)
	for _, col := range columns {
		if col.Index < len(names) && names[col.Index] != "" {
			acc[col.Slug].Name = names[col.Index]
		}
	}

	for _, field := range p.fields {
		cells := ColumnCells(doc, field.Query)
		for _, col := range columns {
			field.Apply(acc[col.Slug], cellAt(cells, col.Index))
		}
	}

	pageColumns := len(ColumnLinks(doc))
	for _, col := range columns {
		if col.Index+1 > pageColumns {
			pageColumns = col.Index + 1
		}
	}
	cameras := ExtractCameras(doc, pageColumns)
	for _, col := range columns {
		acc[col.Slug].Cameras = cameras[col.Index]
		acc[col.Slug].Benchmarks = parseBenchmarks(doc, col.Index)
	}

	records := make([]*models.RawDeviceRecord, 0, len(columns))
	for _, col := range columns {
		records = append(records, acc[col.Slug])
	}
	return records, nil
}

func newRecord(slug, html string) *models.RawDeviceRecord {
	return &models.RawDeviceRecord{
		Slug:       slug,
		Aliases:    []string{},
		Materials:  []string{},
		Colors:     []string{},
		SKUs:       []models.SKU{},
		Cameras:    []models.CameraRecord{},
		Benchmarks: []models.Benchmark{},
		RawHTML:    html,
	}
}
