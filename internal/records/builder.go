package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	idField           = "_id"
	lastModifiedField = "_lastModifiedDateTime"
	createdField      = "createdDateTime"
	removedField      = "_removed"
	removedDateField  = "_removedDateTime"
	archivedField     = "_archived"
	archivedDateField = "_archivedDateTime"
	timestampField    = "timestamp"

	mongoDateLayout = "2006-01-02T15:04:05.000-0700"
)

// Record is one generated record and the mutation applied to it, if any
type Record struct {
	Fields   map[string]interface{}
	Mutation Mutation
}

// Builder produces records from a manifest
type Builder struct {
	manifest *Manifest
	newID    func() string
	now      func() time.Time
}

// NewBuilder creates a builder for manifest
func NewBuilder(manifest *Manifest) (*Builder, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return &Builder{
		manifest: manifest,
		newID:    uuid.NewString,
		now:      time.Now,
	}, nil
}

// Build returns a copy of the template with fresh identifiers
func (b *Builder) Build() Record {
	fields := deepCopy(b.manifest.Template).(map[string]interface{})
	for _, path := range b.manifest.RandomizedPaths {
		setPath(fields, strings.Split(path, "."), b.newID())
	}
	return Record{Fields: fields}
}

// Mutate applies m to rec
func (b *Builder) Mutate(m Mutation, rec Record) Record {
	fields := rec.Fields
	now := b.now().UTC()
	date := map[string]interface{}{"$date": now.Format(mongoDateLayout)}

	switch m {
	case NoID:
		delete(fields, idField)
	case MongoID:
		fields[idField] = map[string]interface{}{"$oid": bson.NewObjectID().Hex()}
	case MongoDateID:
		fields[idField] = map[string]interface{}{
			createdField:    date,
			"declarationId": b.newID(),
		}
	case StringID:
		fields[idField] = b.newID()
	case NoTimestamp:
		delete(fields, lastModifiedField)
	case NoTimestamps:
		delete(fields, lastModifiedField)
		delete(fields, createdField)
	case Removed:
		fields = wrap(removedField, removedDateField, fields, date, now)
	case Archived:
		fields = wrap(archivedField, archivedDateField, fields, date, now)
	case Truncated:
		// applied at serialization
	}

	return Record{Fields: fields, Mutation: m}
}

// wrap nests inner the way deleted documents appear in a dump
func wrap(field, dateField string, inner map[string]interface{}, date map[string]interface{}, now time.Time) map[string]interface{} {
	lastModified, ok := inner[lastModifiedField]
	if !ok {
		lastModified = date
	}

	return map[string]interface{}{
		field:             inner,
		dateField:         date,
		lastModifiedField: lastModified,
		timestampField:    now.UnixMilli(),
	}
}

// BuildBatch builds size records with each mutation applied to exactly one
// record at a random position. Duplicate mutations are applied once.
func (b *Builder) BuildBatch(size int, mutations []Mutation, rng *rand.Rand) ([]Record, error) {
	unique := make([]Mutation, 0, len(mutations))
	seen := make(map[Mutation]bool, len(mutations))
	for _, m := range mutations {
		if !seen[m] {
			seen[m] = true
			unique = append(unique, m)
		}
	}

	if len(unique) > size {
		return nil, fmt.Errorf("%w: %d mutations, batch size %d", ErrTooManyMutations, len(unique), size)
	}

	records := make([]Record, size)
	for i := range records {
		records[i] = b.Build()
	}

	positions := rng.Perm(size)
	for i, m := range unique {
		records[positions[i]] = b.Mutate(m, records[positions[i]])
	}

	return records, nil
}

// Serialize renders rec as one JSON line without the trailing newline
func Serialize(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}

	line := bytes.TrimRight(buf.Bytes(), "\n")
	if rec.Mutation == Truncated {
		line = line[:len(line)/2]
	}
	return line, nil
}

// EncodeBatch renders records as newline delimited JSON, each line newline terminated
func EncodeBatch(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := Serialize(rec)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func setPath(fields map[string]interface{}, segments []string, value interface{}) {
	current := fields
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

func deepCopy(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, item := range value {
			out[k] = deepCopy(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return value
	}
}
