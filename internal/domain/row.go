package domain

// Row is one extracted document ready for indexing: the resource identifier
// plus per-field values. Histogram fields carry base64 payloads, hash fields
// carry token lists; multi-valued fields carry one entry per sub-image.
type Row struct {
	ID     string
	Fields map[string][]string
}
