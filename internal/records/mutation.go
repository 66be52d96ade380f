package records

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooManyMutations is returned when a batch cannot hold every requested mutation
var ErrTooManyMutations = errors.New("more mutations requested than records in batch")

// Mutation is a deliberate deviation from the template used to exercise the importer's edge cases
type Mutation string

const (
	NoID         Mutation = "no-id"
	MongoID      Mutation = "mongo-id"
	MongoDateID  Mutation = "mongo-date-id"
	StringID     Mutation = "string-id"
	NoTimestamp  Mutation = "no-timestamp"
	NoTimestamps Mutation = "no-timestamps"
	Removed      Mutation = "removed"
	Archived     Mutation = "archived"
	Truncated    Mutation = "truncated"
)

// AllMutations returns every mutation in a stable order
func AllMutations() []Mutation {
	return []Mutation{NoID, MongoID, MongoDateID, StringID, NoTimestamp, NoTimestamps, Removed, Archived, Truncated}
}

// ParseMutation converts a mutation name into a Mutation
func ParseMutation(name string) (Mutation, error) {
	normalized := Mutation(strings.ToLower(strings.TrimSpace(name)))
	for _, m := range AllMutations() {
		if m == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mutation %q", name)
}
