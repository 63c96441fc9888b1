package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/thatssosanya/kimovil-scraper/internal/llm"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

const (
	DefaultLanguage    = "English"
	DefaultTemperature = 0.4
)

type Options struct {
	// Language is the display language of every non-name text field.
	Language    string
	Temperature float32
}

// Normalizer turns raw scraped records into validated canonical records
// through a schema-constrained completion.
type Normalizer struct {
	gen      llm.Generator
	validate *validator.Validate
	opts     Options
	logger   *slog.Logger
}

func New(gen llm.Generator, opts Options, logger *slog.Logger) *Normalizer {
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	return &Normalizer{
		gen:      gen,
		validate: NewValidator(),
		opts:     opts,
		logger:   logger.With("component", "normalizer"),
	}
}

// NewValidator returns a validator that knows the camera_type tag and reports
// fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("camera_type", func(fl validator.FieldLevel) bool {
		return IsCameraType(fl.Field().String())
	})
	return v
}

// IsCameraType reports whether s is one of the accepted camera types.
func IsCameraType(s string) bool {
	for _, t := range models.CameraTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Normalize sends raw through the model and returns the validated canonical
// record. Any empty, malformed or invalid completion is a NormalizationError.
func (n *Normalizer) Normalize(ctx context.Context, raw *models.RawDeviceRecord) (*models.CanonicalDeviceRecord, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, &models.NormalizationError{Slug: raw.Slug, Reason: "failed to encode raw record", Err: err}
	}

	n.logger.Info("normalizing device", "slug", raw.Slug, "payload_bytes", len(payload))

	record, err := llm.GenerateJSON[models.CanonicalDeviceRecord](ctx, n.gen, llm.Request{
		Purpose:     llm.PurposeNormalize,
		System:      n.systemPrompt(),
		Prompt:      string(payload),
		SchemaName:  SchemaName,
		Schema:      Schema,
		Temperature: n.opts.Temperature,
	})
	if err != nil {
		reason := "completion failed"
		switch {
		case errors.Is(err, llm.ErrEmptyCompletion):
			reason = "empty completion"
		case errors.Is(err, llm.ErrInvalidCompletion):
			reason = "completion is not a valid record"
		}
		n.logger.Warn("normalization failed", "slug", raw.Slug, "reason", reason, "error", err)
		return nil, &models.NormalizationError{Slug: raw.Slug, Reason: reason, Err: err}
	}

	Canonicalize(record, raw)

	if err := n.validate.Struct(record); err != nil {
		n.logger.Warn("normalized record failed validation", "slug", raw.Slug, "error", err)
		return nil, &models.NormalizationError{Slug: raw.Slug, Reason: "schema validation failed", Err: err}
	}

	n.logger.Info("device normalized", "slug", record.Slug, "skus", len(record.SKUs), "cameras", len(record.Cameras))
	return record, nil
}

func (n *Normalizer) systemPrompt() string {
	return fmt.Sprintf(`You clean up smartphone specifications scraped from a comparison site.
The user message is one raw device record as JSON. Reply with a single JSON object matching the schema.

Rules:
- Write every text value except names, brands, aliases and model codes in %s.
- Never add a value the raw record does not support. Use null or an empty array instead.
- Numbers stay numbers. Never put units or placeholder text in numeric fields.
- Merge SKUs with the same ram_gb and storage_gb into one entry whose markets are the union of the merged markets.
- When a camera's aperture is unknown, write "-".
- Shorten CPU names by dropping internal model-code suffixes, e.g. "Snapdragon 8 Gen 3 (SM8650-AB)" becomes "Snapdragon 8 Gen 3".
- A camera with macro capability whose primary purpose is not macro has type "wide-angle-with-macro-feature". Use "macro" only for dedicated macro cameras.
- Keep camera feature terms that have no natural translation verbatim.
- Keep the slug exactly as given.`, n.opts.Language)
}

// Canonicalize applies the deterministic parts of normalization to a decoded
// record: the slug comes from the raw record, SKUs are merged by memory
// configuration, unknown apertures get the placeholder and missing camera
// types fall back to the raw camera at the same position.
func Canonicalize(rec *models.CanonicalDeviceRecord, raw *models.RawDeviceRecord) {
	rec.Slug = raw.Slug
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = raw.Name
	}
	if strings.TrimSpace(rec.Brand) == "" {
		rec.Brand = raw.Brand
	}

	rec.SKUs = MergeSKUs(rec.SKUs)

	for i := range rec.Cameras {
		cam := &rec.Cameras[i]
		cam.Aperture = strings.TrimSpace(cam.Aperture)
		if cam.Aperture == "" || cam.Aperture == "--" || strings.EqualFold(cam.Aperture, "null") {
			cam.Aperture = models.UnknownAperture
		}
		if cam.Type == "" && len(rec.Cameras) == len(raw.Cameras) {
			cam.Type = raw.Cameras[i].Type
		}
		if cam.Features == nil {
			cam.Features = []string{}
		}
	}
}

type memoryConfig struct {
	ram     float64
	storage float64
}

// MergeSKUs deduplicates SKUs by RAM and storage, keeping the first
// occurrence's position and the ordered union of markets.
func MergeSKUs(skus []models.SKU) []models.SKU {
	if skus == nil {
		return nil
	}

	out := make([]models.SKU, 0, len(skus))
	index := map[memoryConfig]int{}
	for _, sku := range skus {
		key := memoryConfig{ram: sku.RAMGB, storage: sku.StorageGB}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, models.SKU{RAMGB: sku.RAMGB, StorageGB: sku.StorageGB, Markets: []string{}})
			i = len(out) - 1
		}
		for _, market := range sku.Markets {
			market = strings.TrimSpace(market)
			if market != "" && !contains(out[i].Markets, market) {
				out[i].Markets = append(out[i].Markets, market)
			}
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if strings.EqualFold(existing, v) {
			return true
		}
	}
	return false
}
