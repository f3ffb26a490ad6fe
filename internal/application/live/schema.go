package live

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"agrihill-backend/internal/domain"
	"agrihill-backend/internal/infrastructure/docstore"

	"github.com/google/uuid"
)

// IncomingPrefix marks ids assigned to transient records that arrived
// without one.
const IncomingPrefix = "incoming-"

// Schema maps input field names onto the canonical Record. Each canonical
// field lists its aliases in priority order; the first usable alias wins.
type Schema struct {
	Kind     domain.Kind
	Text     map[domain.Field][]string
	Number   map[domain.Field][]string
	Fallback map[domain.Field]string
}

// Normalize converts a stored document. Documents of another kind are
// rejected; documents without a type are produce.
func (s Schema) Normalize(doc docstore.Document) (domain.Record, bool) {
	raw, _ := toText(doc.Fields["type"])
	kind := domain.KindOf(raw)
	if s.Kind != "" && kind != s.Kind {
		return domain.Record{}, false
	}
	rec, _ := s.decode(doc.Fields)
	rec.ID = doc.ID
	rec.Kind = kind
	rec.Source = domain.SourceRemote
	if !doc.CreatedAt.IsZero() {
		t := doc.CreatedAt
		rec.CreatedAt = &t
	}
	if !doc.LastUpdated.IsZero() {
		t := doc.LastUpdated
		rec.LastUpdated = &t
	}
	return rec, true
}

// Incoming builds a transient record from loose fields. It reports false when
// none of the schema's aliases are present. A caller-supplied "id" is kept so
// the record reconciles with its remote copy once the subscription has it.
func (s Schema) Incoming(fields map[string]any, src domain.Source) (domain.Record, bool) {
	rec, matched := s.decode(fields)
	if matched == 0 {
		return domain.Record{}, false
	}
	rec.Kind = s.Kind
	rec.Source = src
	if id, ok := toText(fields["id"]); ok {
		rec.ID = id
	} else {
		rec.ID = IncomingPrefix + uuid.NewString()
	}
	return rec, true
}

// FromQuery decodes URL query parameters, first value per key.
func (s Schema) FromQuery(values url.Values) (domain.Record, bool) {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return s.Incoming(fields, domain.SourceQuery)
}

func (s Schema) decode(fields map[string]any) (domain.Record, int) {
	var rec domain.Record
	matched := 0
	for f, aliases := range s.Text {
		for _, a := range aliases {
			if v, ok := toText(fields[a]); ok {
				rec.SetText(f, v)
				matched++
				break
			}
		}
		if rec.Text(f) == "" {
			rec.SetText(f, s.Fallback[f])
		}
	}
	for f, aliases := range s.Number {
		for _, a := range aliases {
			if v, ok := toNumber(fields[a]); ok {
				rec.SetNumber(f, v)
				matched++
				break
			}
		}
	}
	return rec, matched
}

// toNumber coerces v to a finite float. Blank strings and non-numeric values
// report false so the next alias gets a chance.
func toNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toText(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case bool, int, int64, json.Number:
		s = fmt.Sprint(x)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
