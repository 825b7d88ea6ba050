package normalizer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gridwatch/faultmap/internal/models"
)

// Schema maps the four canonical columns onto upstream field names. The
// upstream API nests its payload in a "fields" object; Separator is the
// string used when flattening that nesting into the lookup keys.
type Schema struct {
	Name      string // Name identifies the schema variant in logs.
	Separator string // Separator joins nested keys during flattening.
	Postcode  string
	Status    string
	StartTime string
	Reason    string
}

// DefaultSchemas is the candidate field-mapping table, tried in order. The
// upstream API has renamed and re-nested fields across versions, so each
// observed variant gets an explicit entry instead of guessing.
var DefaultSchemas = []Schema{
	{
		Name:      "v1-underscore",
		Separator: "_",
		Postcode:  "fields_postcodesaffected",
		Status:    "fields_incidenttypename",
		StartTime: "fields_creationdatetime",
		Reason:    "fields_mainmessage",
	},
	{
		Name:      "v2-dotted",
		Separator: ".",
		Postcode:  "fields.postcodesaffected",
		Status:    "fields.incidenttypename",
		StartTime: "fields.creationdatetime",
		Reason:    "fields.mainmessage",
	},
	{
		Name:      "v3-renamed",
		Separator: "_",
		Postcode:  "fields_postcodes_affected",
		Status:    "fields_incidentcategory",
		StartTime: "fields_plannedstartdate",
		Reason:    "fields_statusmessage",
	},
}

// SchemaError reports that no candidate schema matched the raw records.
// Missing lists the fields absent from the closest candidate.
type SchemaError struct {
	Schema  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("no schema matched raw records: closest %q missing fields %v", e.Schema, e.Missing)
}

// Normalizer reshapes raw fault records into the canonical tabular form.
type Normalizer struct {
	schemas []Schema
	log     *slog.Logger
}

// New creates a Normalizer with the default candidate schemas.
func New(log *slog.Logger) *Normalizer {
	return &Normalizer{schemas: DefaultSchemas, log: log}
}

// NewWithSchemas creates a Normalizer with a custom candidate schema table.
func NewWithSchemas(schemas []Schema, log *slog.Logger) *Normalizer {
	return &Normalizer{schemas: schemas, log: log}
}

// Normalize converts the raw record list into FaultRecords. The candidate
// schemas are tried in order against the flattened field set of the batch;
// if none matches, an empty slice and a *SchemaError are returned. It never
// panics on unexpected shapes.
func (n *Normalizer) Normalize(raw []models.RawRecord) ([]models.FaultRecord, error) {
	if len(raw) == 0 {
		return []models.FaultRecord{}, nil
	}

	var closest *SchemaError
	for _, schema := range n.schemas {
		flattened := make([]map[string]any, 0, len(raw))
		for _, record := range raw {
			flattened = append(flattened, Flatten(record, schema.Separator))
		}

		missing := schema.missingFields(flattened)
		if len(missing) == 0 {
			return n.apply(schema, flattened), nil
		}

		if closest == nil || len(missing) < len(closest.Missing) {
			closest = &SchemaError{Schema: schema.Name, Missing: missing}
		}
	}

	n.log.Warn("No schema matched raw records",
		"closest", closest.Schema, "missing", closest.Missing)

	return []models.FaultRecord{}, closest
}

// missingFields returns the expected fields absent from every record in the
// batch. Matching the whole batch mirrors how the column set of a table is
// checked, rather than each row individually.
func (s Schema) missingFields(flattened []map[string]any) []string {
	expected := []string{s.Postcode, s.Status, s.StartTime, s.Reason}

	present := make(map[string]bool)
	for _, record := range flattened {
		for key := range record {
			present[key] = true
		}
	}

	var missing []string
	for _, field := range expected {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

func (n *Normalizer) apply(schema Schema, flattened []map[string]any) []models.FaultRecord {
	rows := make([]models.FaultRecord, 0, len(flattened))
	for _, record := range flattened {
		rows = append(rows, models.FaultRecord{
			Postcode:  ExtractPrimaryPostcode(record[schema.Postcode]),
			Status:    stringValue(record[schema.Status]),
			StartTime: stringValue(record[schema.StartTime]),
			Reason:    stringValue(record[schema.Reason]),
		})
	}

	n.log.Debug("Normalized raw records", "schema", schema.Name, "rows", len(rows))

	return rows
}

// Flatten collapses nested objects into a single-level map, joining key
// segments with the given separator. Non-map values pass through unchanged.
func Flatten(record map[string]any, separator string) map[string]any {
	out := make(map[string]any, len(record))
	flattenInto(out, "", record, separator)
	return out
}

func flattenInto(out map[string]any, prefix string, value map[string]any, separator string) {
	for key, val := range value {
		full := key
		if prefix != "" {
			full = prefix + separator + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenInto(out, full, nested, separator)
			continue
		}
		out[full] = val
	}
}

// ExtractPrimaryPostcode selects the primary postcode from a possibly
// multi-valued source field: the first element of a non-empty list, or the
// trimmed prefix before the first semicolon of a string. Anything else
// yields an empty postcode.
func ExtractPrimaryPostcode(value any) string {
	switch v := value.(type) {
	case []any:
		if len(v) == 0 {
			return ""
		}
		return strings.TrimSpace(stringValue(v[0]))
	case []string:
		if len(v) == 0 {
			return ""
		}
		return strings.TrimSpace(v[0])
	case string:
		head, _, _ := strings.Cut(v, ";")
		return strings.TrimSpace(head)
	default:
		return ""
	}
}

// stringValue renders an upstream field value as a string without
// panicking on drifted types.
func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
