package models

import "gorm.io/gorm"

// AppendRun records the outcome of one sheet reconciliation, including
// runs that inserted nothing, so repeated idempotent executions stay
// visible in the audit trail.
type AppendRun struct {
	gorm.Model
	RunID      string `gorm:"index;not null"` // ULID shared by all sheets of one execution
	SheetName  string `gorm:"not null"`
	Layout     string `gorm:"not null"` // "domestic" or "foreign"
	Inserted   int
	Duplicates int
	DryRun     bool
}
