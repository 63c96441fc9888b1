package normalizer

import "encoding/json"

// SchemaName names the canonical record schema in completion requests.
const SchemaName = "canonical_device_record"

// Schema is the strict output schema of a normalization completion. Every
// property is required and nullable values are typed as such.
var Schema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["slug", "name", "brand", "aliases", "release_date", "dimensions", "materials", "ip_rating", "colors", "display", "cpu", "gpu", "skus", "connectivity", "battery", "cameras", "benchmarks", "os"],
  "properties": {
    "slug": {"type": "string"},
    "name": {"type": "string"},
    "brand": {"type": "string"},
    "aliases": {"type": "array", "items": {"type": "string"}},
    "release_date": {"type": ["string", "null"], "description": "YYYY-MM-DD"},
    "dimensions": {
      "type": "object",
      "additionalProperties": false,
      "required": ["height_mm", "width_mm", "thickness_mm", "weight_g"],
      "properties": {
        "height_mm": {"type": ["number", "null"]},
        "width_mm": {"type": ["number", "null"]},
        "thickness_mm": {"type": ["number", "null"]},
        "weight_g": {"type": ["number", "null"]}
      }
    },
    "materials": {"type": "array", "items": {"type": "string"}},
    "ip_rating": {"type": ["string", "null"]},
    "colors": {"type": "array", "items": {"type": "string"}},
    "display": {
      "type": "object",
      "additionalProperties": false,
      "required": ["size_inches", "resolution_w", "resolution_h", "type", "refresh_rate_hz", "ppi"],
      "properties": {
        "size_inches": {"type": ["number", "null"]},
        "resolution_w": {"type": ["integer", "null"]},
        "resolution_h": {"type": ["integer", "null"]},
        "type": {"type": ["string", "null"]},
        "refresh_rate_hz": {"type": ["number", "null"]},
        "ppi": {"type": ["number", "null"]}
      }
    },
    "cpu": {"type": ["string", "null"]},
    "gpu": {"type": ["string", "null"]},
    "skus": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["ram_gb", "storage_gb", "markets"],
        "properties": {
          "ram_gb": {"type": "number"},
          "storage_gb": {"type": "number"},
          "markets": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "connectivity": {
      "type": "object",
      "additionalProperties": false,
      "required": ["nfc", "headphone_jack", "five_g", "wifi", "bluetooth", "usb"],
      "properties": {
        "nfc": {"type": ["boolean", "null"]},
        "headphone_jack": {"type": ["boolean", "null"]},
        "five_g": {"type": ["boolean", "null"]},
        "wifi": {"type": ["string", "null"]},
        "bluetooth": {"type": ["string", "null"]},
        "usb": {"type": ["string", "null"]}
      }
    },
    "battery": {
      "type": "object",
      "additionalProperties": false,
      "required": ["capacity_mah", "fast_charging_w", "wireless_charging_w"],
      "properties": {
        "capacity_mah": {"type": ["number", "null"]},
        "fast_charging_w": {"type": ["number", "null"]},
        "wireless_charging_w": {"type": ["number", "null"]}
      }
    },
    "cameras": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["resolution_mp", "aperture", "sensor", "type", "features"],
        "properties": {
          "resolution_mp": {"type": "number"},
          "aperture": {"type": "string", "description": "f-stop such as f/1.8, or - when unknown"},
          "sensor": {"type": ["string", "null"]},
          "type": {"type": "string", "enum": ["wide", "ultrawide", "zoom", "main", "front", "lidar", "macro", "infrared", "wide-angle-with-macro-feature"]},
          "features": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "benchmarks": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "score"],
        "properties": {
          "name": {"type": "string"},
          "score": {"type": "number"}
        }
      }
    },
    "os": {"type": ["string", "null"]}
  }
}`)
