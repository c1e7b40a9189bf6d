// Package sqlxrepos provides PostgreSQL-backed repositories built on sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
)

// orderByClause renders an ORDER BY from the requested ordering, keeping only
// fields present in the allowed set. Falls back to fallback when nothing survives.
func orderByClause(ordering []core.DBOrdering, allowed map[string]struct{}, fallback string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := allowed[ord.Field]; ok {
			clauses = append(clauses, ord.String())
		}
	}
	if len(clauses) == 0 {
		if fallback == "" {
			return ""
		}
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

// validUUIDs filters out values that would make postgres choke on a uuid column.
func validUUIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}
