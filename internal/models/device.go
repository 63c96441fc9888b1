package models

import (
	"strings"
)

// ListDelimiter joins plain string arrays when a record crosses into storage.
const ListDelimiter = "|"

// CameraType is the functional purpose of a camera module
type CameraType string

const (
	CameraWide          CameraType = "wide"
	CameraUltrawide     CameraType = "ultrawide"
	CameraZoom          CameraType = "zoom"
	CameraMain          CameraType = "main"
	CameraFront         CameraType = "front"
	CameraLidar         CameraType = "lidar"
	CameraMacro         CameraType = "macro"
	CameraInfrared      CameraType = "infrared"
	CameraWideWithMacro CameraType = "wide-angle-with-macro-feature"
)

// UnknownAperture is the placeholder rendered when a camera's f-stop is unknown
const UnknownAperture = "-"

// CameraTypes lists every accepted camera type in schema order
var CameraTypes = []CameraType{
	CameraWide, CameraUltrawide, CameraZoom, CameraMain, CameraFront,
	CameraLidar, CameraMacro, CameraInfrared, CameraWideWithMacro,
}

// Dimensions holds the physical size of a device in millimetres and grams
type Dimensions struct {
	HeightMM    *float64 `json:"height_mm"`
	WidthMM     *float64 `json:"width_mm"`
	ThicknessMM *float64 `json:"thickness_mm"`
	WeightG     *float64 `json:"weight_g"`
}

// Display holds the screen specification
type Display struct {
	SizeInches    *float64 `json:"size_inches"`
	ResolutionW   *int     `json:"resolution_w"`
	ResolutionH   *int     `json:"resolution_h"`
	Type          *string  `json:"type"`
	RefreshRateHz *float64 `json:"refresh_rate_hz"`
	PPI           *float64 `json:"ppi"`
}

// SKU is one sold configuration of a device
type SKU struct {
	RAMGB     float64  `json:"ram_gb" validate:"gte=0"`
	StorageGB float64  `json:"storage_gb" validate:"gt=0"`
	Markets   []string `json:"markets"`
}

// Connectivity holds radio and port capabilities
type Connectivity struct {
	NFC           *bool   `json:"nfc"`
	HeadphoneJack *bool   `json:"headphone_jack"`
	FiveG         *bool   `json:"five_g"`
	WiFi          *string `json:"wifi"`
	Bluetooth     *string `json:"bluetooth"`
	USB           *string `json:"usb"`
}

// Battery holds battery capacity and charging specs
type Battery struct {
	CapacityMAh       *float64 `json:"capacity_mah"`
	FastChargingW     *float64 `json:"fast_charging_w"`
	WirelessChargingW *float64 `json:"wireless_charging_w"`
}

// CameraRecord is a single camera module. A camera without a parseable
// resolution is never constructed.
type CameraRecord struct {
	ResolutionMP float64    `json:"resolution_mp" validate:"gt=0"`
	Aperture     string     `json:"aperture" validate:"required"`
	Sensor       *string    `json:"sensor"`
	Type         CameraType `json:"type" validate:"required,camera_type"`
	Features     []string   `json:"features"`
}

// Benchmark is a named benchmark score
type Benchmark struct {
	Name  string  `json:"name" validate:"required"`
	Score float64 `json:"score"`
}

// RawDeviceRecord is one device as scraped from a comparison page
type RawDeviceRecord struct {
	Slug         string         `json:"slug"`
	Name         string         `json:"name"`
	Brand        string         `json:"brand"`
	Aliases      []string       `json:"aliases"`
	ReleaseDate  *string        `json:"release_date"`
	Dimensions   Dimensions     `json:"dimensions"`
	Materials    []string       `json:"materials"`
	IPRating     *string        `json:"ip_rating"`
	Colors       []string       `json:"colors"`
	Display      Display        `json:"display"`
	CPU          *string        `json:"cpu"`
	GPU          *string        `json:"gpu"`
	SKUs         []SKU          `json:"skus"`
	Connectivity Connectivity   `json:"connectivity"`
	Battery      Battery        `json:"battery"`
	Cameras      []CameraRecord `json:"cameras"`
	Benchmarks   []Benchmark    `json:"benchmarks"`
	OS           *string        `json:"os"`

	// RawHTML is kept for audit only and never re-parsed.
	RawHTML string `json:"-"`
}

// CanonicalDeviceRecord is the validated output of normalization. It is
// immutable once created.
type CanonicalDeviceRecord struct {
	Slug         string         `json:"slug" validate:"required"`
	Name         string         `json:"name" validate:"required"`
	Brand        string         `json:"brand" validate:"required"`
	Aliases      []string       `json:"aliases" validate:"required"`
	ReleaseDate  *string        `json:"release_date" validate:"omitempty,datetime=2006-01-02"`
	Dimensions   Dimensions     `json:"dimensions"`
	Materials    []string       `json:"materials" validate:"required"`
	IPRating     *string        `json:"ip_rating"`
	Colors       []string       `json:"colors" validate:"required"`
	Display      Display        `json:"display"`
	CPU          *string        `json:"cpu"`
	GPU          *string        `json:"gpu"`
	SKUs         []SKU          `json:"skus" validate:"required,dive"`
	Connectivity Connectivity   `json:"connectivity"`
	Battery      Battery        `json:"battery"`
	Cameras      []CameraRecord `json:"cameras" validate:"required,dive"`
	Benchmarks   []Benchmark    `json:"benchmarks" validate:"required,dive"`
	OS           *string        `json:"os"`
}

// StoredCamera is a camera with its feature tags joined for storage
type StoredCamera struct {
	ResolutionMP float64    `json:"resolution_mp"`
	Aperture     string     `json:"aperture"`
	Sensor       *string    `json:"sensor"`
	Type         CameraType `json:"type"`
	Features     string     `json:"features"`
}

// StoredSKU is a SKU with its markets joined for storage
type StoredSKU struct {
	RAMGB     float64 `json:"ram_gb"`
	StorageGB float64 `json:"storage_gb"`
	Markets   string  `json:"markets"`
}

// StoredDeviceRecord is the storage-oriented form of a canonical record
type StoredDeviceRecord struct {
	Slug         string         `json:"slug"`
	Name         string         `json:"name"`
	Brand        string         `json:"brand"`
	Aliases      string         `json:"aliases"`
	ReleaseDate  *string        `json:"release_date"`
	Dimensions   Dimensions     `json:"dimensions"`
	Materials    string         `json:"materials"`
	IPRating     *string        `json:"ip_rating"`
	Colors       string         `json:"colors"`
	Display      Display        `json:"display"`
	CPU          *string        `json:"cpu"`
	GPU          *string        `json:"gpu"`
	SKUs         []StoredSKU    `json:"skus"`
	Connectivity Connectivity   `json:"connectivity"`
	Battery      Battery        `json:"battery"`
	Cameras      []StoredCamera `json:"cameras"`
	Benchmarks   []Benchmark    `json:"benchmarks"`
	OS           *string        `json:"os"`
}

// Flatten converts plain string arrays into delimited strings. Object arrays
// stay structured.
func (r *CanonicalDeviceRecord) Flatten() *StoredDeviceRecord {
	stored := &StoredDeviceRecord{
		Slug:         r.Slug,
		Name:         r.Name,
		Brand:        r.Brand,
		Aliases:      JoinList(r.Aliases),
		ReleaseDate:  r.ReleaseDate,
		Dimensions:   r.Dimensions,
		Materials:    JoinList(r.Materials),
		IPRating:     r.IPRating,
		Colors:       JoinList(r.Colors),
		Display:      r.Display,
		CPU:          r.CPU,
		GPU:          r.GPU,
		Connectivity: r.Connectivity,
		Battery:      r.Battery,
		Benchmarks:   append([]Benchmark(nil), r.Benchmarks...),
		OS:           r.OS,
	}
	for _, sku := range r.SKUs {
		stored.SKUs = append(stored.SKUs, StoredSKU{
			RAMGB:     sku.RAMGB,
			StorageGB: sku.StorageGB,
			Markets:   JoinList(sku.Markets),
		})
	}
	for _, cam := range r.Cameras {
		stored.Cameras = append(stored.Cameras, StoredCamera{
			ResolutionMP: cam.ResolutionMP,
			Aperture:     cam.Aperture,
			Sensor:       cam.Sensor,
			Type:         cam.Type,
			Features:     JoinList(cam.Features),
		})
	}
	return stored
}

// JoinList joins non-empty values in order
func JoinList(values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ListDelimiter)
}

// SplitList is the inverse of JoinList
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ListDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AutocompleteOption is a candidate returned by the comparison site search
type AutocompleteOption struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// DeviceSummary is a device already present in the catalogue
type DeviceSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Type string `json:"type,omitempty"`
}

// Device is the catalogue's view of an imported device
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ImportOptions controls a catalogue write. Unique stores the record under a
// free variant of its slug instead of failing when the slug is owned.
type ImportOptions struct {
	DeviceType string
	Unique     bool
}

// CanonicalSlug reduces a comparison site identifier or link to its bare slug
func CanonicalSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimPrefix(s, "where-to-buy-")
	return s
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v
func Int(v int) *int { return &v }

// String returns a pointer to v
func String(v string) *string { return &v }

// Bool returns a pointer to v
func Bool(v bool) *bool { return &v }
