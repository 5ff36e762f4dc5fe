package models

import (
	"log"

	"gorm.io/gorm"

	"github.com/zqywuxie/invoice-management/config"
)

// migrationStep is one additive schema change. Each step checks whether it
// already ran so that repeated startups are safe.
type migrationStep struct {
	name string
	run  func(db *gorm.DB) error
}

// migrationSteps is append-only. New columns get a step that adds the column
// when absent and backfills existing rows with a safe default; nothing here
// may rewrite or drop data.
var migrationSteps = []migrationStep{
	{
		name: "invoices.uploaded_by default",
		run: func(db *gorm.DB) error {
			return backfillColumn(db, "uploaded_by", "''")
		},
	},
	{
		name: "invoices.reimbursement_status default",
		run: func(db *gorm.DB) error {
			return backfillColumn(db, "reimbursement_status", "'"+ReimbursementPending+"'")
		},
	},
	{
		name: "invoices.record_type default",
		run: func(db *gorm.DB) error {
			return backfillColumn(db, "record_type", "'"+RecordTypeInvoice+"'")
		},
	},
}

// backfillColumn adds a column if a pre-evolution database lacks it, then
// fills NULL/empty values with the default. Idempotent on both halves.
func backfillColumn(db *gorm.DB, column string, defaultLiteral string) error {
	if !db.Migrator().HasColumn(&Invoice{}, column) {
		if err := db.Migrator().AddColumn(&Invoice{}, column); err != nil {
			return err
		}
	}
	return db.Exec(
		"UPDATE invoices SET " + column + " = " + defaultLiteral +
			" WHERE " + column + " IS NULL OR " + column + " = ''",
	).Error
}

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Invoice{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}

	for _, step := range migrationSteps {
		if err := step.run(db); err != nil {
			log.Fatalf("migration %q failed: %v", step.name, err)
		}
	}
}
