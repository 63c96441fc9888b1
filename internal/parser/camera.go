package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

// Camera tables are attribute-major: one row per attribute, one cell per
// (device, camera slot) pair, device-major within a row.
const (
	rearCameraSection  = "camera"
	frontCameraSection = "selfie"
)

// CameraRow is one attribute row of a camera table.
type CameraRow struct {
	Label string
	Cells []string
}

// cameraSlot accumulates the attributes of one camera column position
type cameraSlot struct {
	closed     bool
	resolution *float64
	aperture   string
	sensor     *string
	kind       models.CameraType
	features   []string
}

// readCameraRows returns the rows of a camera section as plain text
func readCameraRows(doc *goquery.Document, name string) []CameraRow {
	rows := []CameraRow{}
	section(doc, name).Find("tr").Each(func(_ int, row *goquery.Selection) {
		label := rowLabel(row)
		if label == "" {
			return
		}
		cells := []string{}
		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, cellText(td))
		})
		rows = append(rows, CameraRow{Label: label, Cells: cells})
	})
	return rows
}

// TransposeCameras buckets attribute-major rows into per-slot accumulators
// keyed by cell position and transposes them into one camera list per device.
// A sentinel in the resolution row closes a slot that has no resolution yet.
// Slots without a parseable
// resolution are dropped; slot order is preserved.
func TransposeCameras(rows []CameraRow, devices int, defaultType models.CameraType) [][]models.CameraRecord {
	out := make([][]models.CameraRecord, devices)
	for d := range out {
		out[d] = []models.CameraRecord{}
	}
	if devices <= 0 {
		return out
	}

	slotsPerDevice := 0
	for _, row := range rows {
		if n := len(row.Cells) / devices; n > slotsPerDevice {
			slotsPerDevice = n
		}
	}
	if slotsPerDevice == 0 {
		return out
	}

	acc := make([]*cameraSlot, devices*slotsPerDevice)
	for i := range acc {
		acc[i] = &cameraSlot{}
	}

	for _, row := range rows {
		if len(row.Cells) < devices {
			continue
		}
		// rows with fewer slots than the widest row are spread evenly across devices
		rowSlots := len(row.Cells) / devices
		for pos, cell := range row.Cells[:rowSlots*devices] {
			slot := acc[(pos/rowSlots)*slotsPerDevice+pos%rowSlots]
			if slot.closed {
				continue
			}
			if isEmpty(cell) {
				if isResolutionLabel(row.Label) && slot.resolution == nil {
					slot.closed = true
				}
				continue
			}
			applyCameraAttribute(slot, row.Label, cell)
		}
	}

	for d := 0; d < devices; d++ {
		for s := 0; s < slotsPerDevice; s++ {
			slot := acc[d*slotsPerDevice+s]
			if slot.closed || slot.resolution == nil {
				continue
			}
			cam := models.CameraRecord{
				ResolutionMP: *slot.resolution,
				Aperture:     slot.aperture,
				Sensor:       slot.sensor,
				Type:         slot.kind,
				Features:     slot.features,
			}
			if cam.Aperture == "" {
				cam.Aperture = models.UnknownAperture
			}
			if cam.Type == "" {
				cam.Type = defaultType
			}
			if cam.Features == nil {
				cam.Features = []string{}
			}
			out[d] = append(out[d], cam)
		}
	}

	return out
}

// isResolutionLabel matches the photo resolution row only. Rows such as
// "video resolution" describe the slot but never carry its megapixels.
func isResolutionLabel(label string) bool {
	label = strings.TrimSpace(label)
	return label == "resolution" || label == "megapixels"
}

func applyCameraAttribute(slot *cameraSlot, label, cell string) {
	switch {
	case isResolutionLabel(label):
		if mp := parseNumber(cell); mp != nil && *mp > 0 {
			slot.resolution = mp
		}
	case strings.Contains(label, "aperture"):
		slot.aperture = parseAperture(cell)
	case strings.Contains(label, "sensor"):
		slot.sensor = optionalText(cell)
	case label == "type" || strings.Contains(label, "lens"):
		slot.kind = cameraType(cell)
	case strings.Contains(label, "features"):
		for _, f := range strings.Split(cell, ",") {
			if f = strings.TrimSpace(f); f != "" {
				slot.features = append(slot.features, f)
			}
		}
	}
}

// cameraType maps the site's lens description onto a camera type
func cameraType(text string) models.CameraType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "ultra"):
		return models.CameraUltrawide
	case strings.Contains(lower, "tele"), strings.Contains(lower, "zoom"), strings.Contains(lower, "periscope"):
		return models.CameraZoom
	case strings.Contains(lower, "macro") && strings.Contains(lower, "wide"):
		return models.CameraWideWithMacro
	case strings.Contains(lower, "macro"):
		return models.CameraMacro
	case strings.Contains(lower, "lidar"), strings.Contains(lower, "tof"), strings.Contains(lower, "depth"):
		return models.CameraLidar
	case strings.Contains(lower, "infrared"), lower == "ir":
		return models.CameraInfrared
	case strings.Contains(lower, "front"), strings.Contains(lower, "selfie"):
		return models.CameraFront
	case strings.Contains(lower, "main"), strings.Contains(lower, "primary"):
		return models.CameraMain
	case strings.Contains(lower, "wide"):
		return models.CameraWide
	}
	return ""
}

// ExtractCameras returns rear cameras followed by front cameras for every
// visual column of the page.
func ExtractCameras(doc *goquery.Document, devices int) [][]models.CameraRecord {
	rear := TransposeCameras(readCameraRows(doc, rearCameraSection), devices, models.CameraMain)
	front := TransposeCameras(readCameraRows(doc, frontCameraSection), devices, models.CameraFront)
	for d := range rear {
		rear[d] = append(rear[d], front[d]...)
	}
	return rear
}
