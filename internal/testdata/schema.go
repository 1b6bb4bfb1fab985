package testdata

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the JSON type a schema field must have.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Schema maps a field name to either a Kind or a nested Schema.
// It checks presence and type only; extra fields are allowed.
type Schema map[string]any

var (
	SourceSchema = Schema{
		"id":        KindString,
		"name":      KindString,
		"type":      KindString,
		"status":    KindString,
		"createdAt": KindString,
		"updatedAt": KindString,
	}
	SearchResultSchema = Schema{
		"total": KindNumber,
		"items": KindArray,
		"pagination": Schema{
			"limit":       KindNumber,
			"offset":      KindNumber,
			"hasNext":     KindBoolean,
			"hasPrevious": KindBoolean,
		},
	}
	// JobSchema describes a finished job; running jobs have no completedAt yet.
	JobSchema = Schema{
		"jobId":       KindString,
		"status":      KindString,
		"progress":    KindNumber,
		"createdAt":   KindString,
		"completedAt": KindString,
	}
)

// CheckSchema reports every mismatch between doc and schema as "path: problem", sorted.
// doc may be raw JSON bytes or an already decoded value. An empty result means doc conforms.
func CheckSchema(doc any, schema Schema) []string {
	if raw, ok := doc.([]byte); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return []string{fmt.Sprintf("$: invalid JSON: %v", err)}
		}
		doc = decoded
	}
	var problems []string
	checkObject(doc, schema, "", &problems)
	sort.Strings(problems)
	return problems
}

func checkObject(doc any, schema Schema, prefix string, problems *[]string) {
	obj, ok := doc.(map[string]any)
	if !ok {
		*problems = append(*problems, fmt.Sprintf("%s: expected object, got %s", pathOrRoot(prefix), kindOf(doc)))
		return
	}
	for key, want := range schema {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		value, present := obj[key]
		if !present {
			*problems = append(*problems, path+": missing")
			continue
		}
		switch w := want.(type) {
		case Kind:
			if got := kindOf(value); got != w {
				*problems = append(*problems, fmt.Sprintf("%s: expected %s, got %s", path, w, got))
			}
		case Schema:
			checkObject(value, w, path, problems)
		default:
			*problems = append(*problems, fmt.Sprintf("%s: unsupported schema entry %T", path, want))
		}
	}
}

func kindOf(v any) Kind {
	switch v.(type) {
	case string:
		return KindString
	case float64, json.Number:
		return KindNumber
	case bool:
		return KindBoolean
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	case nil:
		return "null"
	default:
		return Kind(fmt.Sprintf("%T", v))
	}
}

func pathOrRoot(p string) string {
	if p == "" {
		return "$"
	}
	return p
}
