package models

// RawRecord is one fault record as returned by the upstream API, before
// normalization. Field names and nesting vary between API versions, so the
// payload is kept as an untyped map until the normalizer resolves a schema.
type RawRecord map[string]any

// FaultRecord is one normalized power outage entry. Postcode holds the
// primary postcode when the upstream reported several; it is empty when no
// postcode could be extracted.
type FaultRecord struct {
	Postcode  string `json:"postcode,omitempty"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
	Reason    string `json:"reason"`
}

// GeocodedFault is a FaultRecord enriched with resolved coordinates.
// Records that could not be resolved never become a GeocodedFault.
type GeocodedFault struct {
	FaultRecord
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
