package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel is the value the comparison site prints for "not applicable".
const Sentinel = "--"

var (
	numberPattern     = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	thousandsPattern  = regexp.MustCompile(`^\d{1,3}(?:[ ,.\x{00a0}]\d{3})+$`)
	dimensionsPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*[x×]\s*(\d+(?:[.,]\d+)?)\s*[x×]\s*(\d+(?:[.,]\d+)?)`)
	resolutionPattern = regexp.MustCompile(`(?i)(\d{3,5})\s*[x×]\s*(\d{3,5})`)
	aperturePattern   = regexp.MustCompile(`(?i)f\s*/\s*(\d+(?:[.,]\d+)?)`)
	ipPattern         = regexp.MustCompile(`(?i)\bIP\s?([0-9X]{2}K?)\b`)
	skuPattern        = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(GB|TB)(?:\s*RAM)?\s*[/·+,]\s*(\d+(?:[.,]\d+)?)\s*(GB|TB)(?:\s*\(([^)]*)\))?`)
)

var releaseLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"2 January 2006",
	"January 2006",
	"Jan 2006",
	"2006-01",
	"2006",
}

// cellText returns the trimmed, whitespace-collapsed text of a cell
func cellText(s *goquery.Selection) string {
	if s == nil {
		return ""
	}
	return strings.Join(strings.Fields(s.Text()), " ")
}

// isEmpty reports whether a cell carries no usable value
func isEmpty(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || text == Sentinel || text == "-" || strings.EqualFold(text, "n/a")
}

// cellItems returns list entries of a cell: <li> items when present, otherwise
// the text split on commas.
func cellItems(s *goquery.Selection) []string {
	items := []string{}
	if s == nil {
		return items
	}

	if lis := s.Find("li"); lis.Length() > 0 {
		lis.Each(func(_ int, li *goquery.Selection) {
			if text := cellText(li); !isEmpty(text) {
				items = append(items, text)
			}
		})
		return items
	}

	text := cellText(s)
	if isEmpty(text) {
		return items
	}
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); !isEmpty(part) {
			items = append(items, part)
		}
	}
	return items
}

func optionalText(text string) *string {
	if isEmpty(text) {
		return nil
	}
	return &text
}

// parseNumber extracts the first decimal number from text. Decimal commas are
// accepted.
func parseNumber(text string) *float64 {
	if isEmpty(text) {
		return nil
	}
	match := numberPattern.FindString(text)
	if match == "" {
		return nil
	}
	val, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &val
}

// parseScore parses benchmark scores such as "1,534,210" or "2 045".
func parseScore(text string) *float64 {
	text = strings.TrimSpace(text)
	if isEmpty(text) {
		return nil
	}
	if thousandsPattern.MatchString(text) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, text)
		val, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return nil
		}
		return &val
	}
	return parseNumber(text)
}

func parseBool(text string) *bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	var val bool
	switch {
	case isEmpty(lower):
		return nil
	case lower == "yes" || lower == "✓" || lower == "✔" || strings.HasPrefix(lower, "yes"):
		val = true
	case lower == "no" || lower == "✗" || lower == "✕" || strings.HasPrefix(lower, "no"):
		val = false
	default:
		return nil
	}
	return &val
}

// parseDimensions reads "146.7 x 71.5 x 7.8 mm" as height, width, thickness.
func parseDimensions(text string) (height, width, thickness *float64) {
	match := dimensionsPattern.FindStringSubmatch(text)
	if match == nil {
		return nil, nil, nil
	}
	return parseNumber(match[1]), parseNumber(match[2]), parseNumber(match[3])
}

func parseResolution(text string) (w, h *int) {
	match := resolutionPattern.FindStringSubmatch(text)
	if match == nil {
		return nil, nil
	}
	a, errA := strconv.Atoi(match[1])
	b, errB := strconv.Atoi(match[2])
	if errA != nil || errB != nil {
		return nil, nil
	}
	return &a, &b
}

// parseAperture normalizes "ƒ/1.8", "f / 1,8" and bare "1.8" to "f/1.8".
func parseAperture(text string) string {
	text = strings.ReplaceAll(text, "ƒ", "f")
	if match := aperturePattern.FindStringSubmatch(text); match != nil {
		return "f/" + strings.Replace(match[1], ",", ".", 1)
	}
	if num := parseNumber(text); num != nil {
		return "f/" + strconv.FormatFloat(*num, 'f', -1, 64)
	}
	return ""
}

func parseIPRating(text string) *string {
	match := ipPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	rating := "IP" + strings.ToUpper(match[1])
	return &rating
}

// parseReleaseDate returns the date as YYYY-MM-DD, or nil when no known
// layout matches.
func parseReleaseDate(text string) *string {
	text = strings.TrimSpace(text)
	if isEmpty(text) {
		return nil
	}
	for _, layout := range releaseLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			date := t.Format("2006-01-02")
			return &date
		}
	}
	return nil
}

func gigabytes(value, unit string) float64 {
	num := parseNumber(value)
	if num == nil {
		return 0
	}
	if strings.EqualFold(unit, "TB") {
		return *num * 1024
	}
	return *num
}
