package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

// Selectors of the comparison page contract.
const (
	columnSelector     = ".compare-header .device-column"
	columnLinkSelector = "a.more-info"
	columnNameSelector = ".device-name"
	sectionSelector    = `section.kc-section[data-section="%s"]`
)

// Query addresses one row of a labeled table section. Label matching is
// case-insensitive on the leading <th> cell.
type Query struct {
	Section string
	Label   string
}

// Column is a comparison column recovered from the page's link structure.
// Index is the column's visual position on the page.
type Column struct {
	Slug  string
	Index int
}

// FieldSpec binds a query to the function that stores one cell into a device
// accumulator.
type FieldSpec struct {
	Name  string
	Query Query
	Apply func(rec *models.RawDeviceRecord, cell *goquery.Selection)
}

// Fields is the declarative field table of the comparison page.
var Fields = []FieldSpec{
	{Name: "brand", Query: Query{"general", "Brand"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		if text := cellText(c); !isEmpty(text) {
			r.Brand = text
		}
	}},
	{Name: "aliases", Query: Query{"general", "Also known as"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Aliases = cellItems(c)
	}},
	{Name: "release_date", Query: Query{"general", "Released"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.ReleaseDate = parseReleaseDate(cellText(c))
	}},
	{Name: "os", Query: Query{"software", "Operating system"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.OS = optionalText(cellText(c))
	}},
	{Name: "dimensions", Query: Query{"design", "Dimensions"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Dimensions.HeightMM, r.Dimensions.WidthMM, r.Dimensions.ThicknessMM = parseDimensions(cellText(c))
	}},
	{Name: "weight", Query: Query{"design", "Weight"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Dimensions.WeightG = parseNumber(cellText(c))
	}},
	{Name: "materials", Query: Query{"design", "Materials"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Materials = cellItems(c)
	}},
	{Name: "ip_rating", Query: Query{"design", "Resistance"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.IPRating = parseIPRating(cellText(c))
	}},
	{Name: "colors", Query: Query{"design", "Colors"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Colors = cellItems(c)
	}},
	{Name: "display_size", Query: Query{"display", "Size"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Display.SizeInches = parseNumber(cellText(c))
	}},
	{Name: "display_resolution", Query: Query{"display", "Resolution"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Display.ResolutionW, r.Display.ResolutionH = parseResolution(cellText(c))
	}},
	{Name: "display_type", Query: Query{"display", "Type"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Display.Type = optionalText(cellText(c))
	}},
	{Name: "refresh_rate", Query: Query{"display", "Refresh rate"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Display.RefreshRateHz = parseNumber(cellText(c))
	}},
	{Name: "ppi", Query: Query{"display", "Density"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Display.PPI = parseNumber(cellText(c))
	}},
	{Name: "cpu", Query: Query{"performance", "Processor"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.CPU = optionalText(cellText(c))
	}},
	{Name: "gpu", Query: Query{"performance", "GPU"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.GPU = optionalText(cellText(c))
	}},
	{Name: "skus", Query: Query{"performance", "Versions"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.SKUs = parseSKUs(c)
	}},
	{Name: "nfc", Query: Query{"connectivity", "NFC"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Connectivity.NFC = parseBool(cellText(c))
	}},
	{Name: "headphone_jack", Query: Query{"connectivity", "Headphone jack"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Connectivity.HeadphoneJack = parseBool(cellText(c))
	}},
	{Name: "five_g", Query: Query{"connectivity", "5G"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Connectivity.FiveG = parseBool(cellText(c))
	}},
	{Name: "wifi", Query: Query{"connectivity", "Wi-Fi"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Connectivity.WiFi = optionalText(cellText(c))
	}},
	{Name: "bluetooth", Query: Query{"connectivity", "Bluetooth"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Connectivity.Bluetooth = optionalText(cellText(c))
	}},
	{Name: "usb", Query: Query{"connectivity", "USB"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Connectivity.USB = optionalText(cellText(c))
	}},
	{Name: "battery_capacity", Query: Query{"battery", "Capacity"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Battery.CapacityMAh = parseNumber(cellText(c))
	}},
	{Name: "fast_charging", Query: Query{"battery", "Fast charging"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Battery.FastChargingW = parseNumber(cellText(c))
	}},
	{Name: "wireless_charging", Query: Query{"battery", "Wireless charging"}, Apply: func(r *models.RawDeviceRecord, c *goquery.Selection) {
		r.Battery.WirelessChargingW = parseNumber(cellText(c))
	}},
}

// section returns the labeled table section, possibly empty
func section(doc *goquery.Document, name string) *goquery.Selection {
	return doc.Find(strings.Replace(sectionSelector, "%s", name, 1))
}

// rowLabel returns the normalized label of a table row
func rowLabel(row *goquery.Selection) string {
	return strings.ToLower(cellText(row.Find("th").First()))
}

// ColumnCells runs a query and returns one cell per column in DOM order. A
// query that matches nothing returns an empty slice.
func ColumnCells(doc *goquery.Document, q Query) []*goquery.Selection {
	cells := []*goquery.Selection{}
	label := strings.ToLower(q.Label)

	section(doc, q.Section).Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if rowLabel(row) != label {
			return true
		}
		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, td)
		})
		return false
	})

	return cells
}

// cellAt returns the cell of a visual column or nil when the array is too short
func cellAt(cells []*goquery.Selection, index int) *goquery.Selection {
	if index < 0 || index >= len(cells) {
		return nil
	}
	return cells[index]
}

// ColumnLinks returns the "more info" link targets of every comparison column
// in visual order.
func ColumnLinks(doc *goquery.Document) []string {
	links := []string{}
	doc.Find(columnSelector).Each(func(_ int, col *goquery.Selection) {
		href, _ := col.Find(columnLinkSelector).First().Attr("href")
		links = append(links, strings.TrimSpace(href))
	})
	return links
}

// columnNames returns the header device names in visual order
func columnNames(doc *goquery.Document) []string {
	names := []string{}
	doc.Find(columnSelector).Each(func(_ int, col *goquery.Selection) {
		names = append(names, cellText(col.Find(columnNameSelector).First()))
	})
	return names
}

// parseSKUs reads "8 GB / 128 GB (Global, Europe)" entries
func parseSKUs(cell *goquery.Selection) []models.SKU {
	skus := []models.SKU{}
	if cell == nil {
		return skus
	}

	entries := []string{}
	if lis := cell.Find("li"); lis.Length() > 0 {
		lis.Each(func(_ int, li *goquery.Selection) {
			entries = append(entries, cellText(li))
		})
	} else {
		entries = append(entries, cellText(cell))
	}

	for _, entry := range entries {
		for _, match := range skuPattern.FindAllStringSubmatch(entry, -1) {
			sku := models.SKU{
				RAMGB:     gigabytes(match[1], match[2]),
				StorageGB: gigabytes(match[3], match[4]),
				Markets:   []string{},
			}
			for _, market := range strings.Split(match[5], ",") {
				if market = strings.TrimSpace(market); market != "" {
					sku.Markets = append(sku.Markets, market)
				}
			}
			if sku.StorageGB > 0 {
				skus = append(skus, sku)
			}
		}
	}

	return skus
}

// parseBenchmarks reads every row of the benchmark section for one column
func parseBenchmarks(doc *goquery.Document, index int) []models.Benchmark {
	benchmarks := []models.Benchmark{}
	section(doc, "benchmarks").Find("tr").Each(func(_ int, row *goquery.Selection) {
		name := cellText(row.Find("th").First())
		if name == "" {
			return
		}
		cell := row.Find("td").Eq(index)
		if cell.Length() == 0 {
			return
		}
		if score := parseScore(cellText(cell)); score != nil {
			benchmarks = append(benchmarks, models.Benchmark{Name: name, Score: *score})
		}
	})
	return benchmarks
}
