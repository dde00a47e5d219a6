package engine

import "strings"

// RecordFilter reshapes one page of records before accumulation. Filters are
// pure: they never mutate the input slice's records in place except through
// documented enrichment, and they never fail.
type RecordFilter interface {
	Apply(records []Record) []Record
}

// AssetPrefixFilter keeps records whose name field starts with a lower-cased
// prefix, whose extension field equals a literal, and whose URL field is
// non-empty. A record missing any of those fields is excluded, not an error.
type AssetPrefixFilter struct {
	NameField      string
	Prefix         string
	ExtensionField string
	Extension      string
	URLField       string
}

// Apply implements RecordFilter.
func (f *AssetPrefixFilter) Apply(records []Record) []Record {
	kept := make([]Record, 0, len(records))
	for _, rec := range records {
		name, ok := stringField(rec, f.NameField)
		if !ok || len(name) < len(f.Prefix) {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(name), f.Prefix) {
			continue
		}
		ext, ok := stringField(rec, f.ExtensionField)
		if !ok || ext != f.Extension {
			continue
		}
		url, ok := stringField(rec, f.URLField)
		if !ok || url == "" {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// ParentIDEnricher attaches a parent identifier to every child record, for
// item types whose records do not carry their parent's id themselves.
type ParentIDEnricher struct {
	Field    string
	ParentID interface{}
}

// Apply implements RecordFilter.
func (e *ParentIDEnricher) Apply(records []Record) []Record {
	for _, rec := range records {
		rec[e.Field] = e.ParentID
	}
	return records
}

// FilterChain applies filters in order.
type FilterChain []RecordFilter

// Apply implements RecordFilter.
func (c FilterChain) Apply(records []Record) []Record {
	for _, f := range c {
		records = f.Apply(records)
	}
	return records
}

func stringField(rec Record, field string) (string, bool) {
	v, ok := rec[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
