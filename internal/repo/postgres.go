package repo

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// unique index / constraint names from the postgres migrations
const (
	constraintAccountEmail       = "accounts_email_key_uniq"
	constraintAssignmentCustomer = "assignments_customer_key_uniq"
	constraintAssignmentProfile  = "assignments_profile_uniq"
)

type pgStore struct {
	db          *sql.DB
	accounts    AccountRepo
	assignments AssignmentRepo
	reports     ReportRepo
}

// NewPostgresStore creates a Store backed by PostgreSQL
func NewPostgresStore(db *sql.DB) Store {
	return &pgStore{
		db:          db,
		accounts:    NewAccountRepo(db),
		assignments: NewAssignmentRepo(db),
		reports:     NewReportRepo(db),
	}
}

func (s *pgStore) Accounts() AccountRepo       { return s.accounts }
func (s *pgStore) Assignments() AssignmentRepo { return s.assignments }
func (s *pgStore) Reports() ReportRepo         { return s.reports }
func (s *pgStore) Close() error                { return s.db.Close() }

// isUniqueViolation reports whether err is a postgres unique violation on the
// named constraint (any constraint when name is empty).
func isUniqueViolation(err error, name string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return name == "" || pqErr.Constraint == name
}

// isForeignKeyViolation reports whether err is a postgres foreign key violation
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
