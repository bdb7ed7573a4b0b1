package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestConstraintClassification(t *testing.T) {
	unique := fmt.Errorf("insert assignment: %w", &pq.Error{Code: "23505", Constraint: constraintAssignmentCustomer})
	foreign := fmt.Errorf("insert assignment: %w", &pq.Error{Code: "23503", Constraint: "assignments_account_id_fkey"})

	assert.True(t, isUniqueViolation(unique, constraintAssignmentCustomer))
	assert.True(t, isUniqueViolation(unique, ""))
	assert.False(t, isUniqueViolation(unique, constraintAssignmentProfile))
	assert.False(t, isUniqueViolation(foreign, ""))

	assert.True(t, isForeignKeyViolation(foreign))
	assert.False(t, isForeignKeyViolation(unique))
	assert.False(t, isForeignKeyViolation(errors.New("connection reset")))
}
