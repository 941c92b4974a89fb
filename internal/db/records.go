package db

import (
	"fmt"

	"github.com/google/uuid"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// recordIDString extracts the string key from a SurrealDB RecordID.
// Returns an error if the key is not a string.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// newRecordKey returns a time-ordered record key so that ties on created_at
// still sort in insertion order.
func newRecordKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
