package models

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zqywuxie/invoice-management/config"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateInvoice signals a unique-key violation on invoice_number.
	ErrDuplicateInvoice = errors.New("invoice number already exists")
	// ErrInvoiceNotFound signals a missing delete/update target.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrNotManualRecord signals an update attempt on an invoice-backed
	// record, whose parsed fields are immutable.
	ErrNotManualRecord = errors.New("only manual records can be edited")
)

// isUniqueViolation recognizes the SQLite UNIQUE constraint error. The
// unique index on invoice_number is the last line of defense when two
// concurrent adds race past the in-memory detector.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertInvoice stores one record. Returns ErrDuplicateInvoice when the
// invoice number is already present.
func InsertInvoice(ctx context.Context, invoice *Invoice) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(invoice).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInvoice
		}
		return err
	}
	return nil
}

// DeleteInvoiceByNumber removes one record. The false return means the
// number was not present, which is an expected outcome, not an error.
func DeleteInvoiceByNumber(ctx context.Context, invoiceNumber string) (bool, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Where("invoice_number = ?", invoiceNumber).Delete(&Invoice{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// LoadAllInvoices returns every record in insertion order.
func LoadAllInvoices(ctx context.Context) ([]*Invoice, error) {
	db := config.GetDB()
	var invoices []*Invoice
	if err := db.WithContext(ctx).Order("id").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// FindInvoiceByNumber returns the record or ErrInvoiceNotFound.
func FindInvoiceByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error) {
	db := config.GetDB()
	var invoice Invoice
	err := db.WithContext(ctx).Where("invoice_number = ?", invoiceNumber).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// SearchInvoices matches the keyword as a case-insensitive substring across
// every textual field, amount included. An empty keyword returns all records.
func SearchInvoices(ctx context.Context, keyword string) ([]*Invoice, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return LoadAllInvoices(ctx)
	}

	db := config.GetDB()
	pattern := "%" + keyword + "%"
	var invoices []*Invoice
	err := db.WithContext(ctx).Where(
		"invoice_number LIKE ? OR invoice_date LIKE ? OR item_name LIKE ? OR amount LIKE ? OR remark LIKE ? OR file_path LIKE ? OR uploaded_by LIKE ?",
		pattern, pattern, pattern, pattern, pattern, pattern, pattern,
	).Order("id").Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// UpdateInvoiceFields writes the editable subset of a manual record.
func UpdateInvoiceFields(ctx context.Context, invoiceNumber string, updates map[string]interface{}) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Invoice{}).
		Where("invoice_number = ?", invoiceNumber).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// UpdateReimbursementStatus flips the reimbursement flag for one record.
func UpdateReimbursementStatus(ctx context.Context, invoiceNumber string, status string) error {
	return UpdateInvoiceFields(ctx, invoiceNumber, map[string]interface{}{
		"reimbursement_status": status,
	})
}

// CheckManualDuplicate looks for an existing manual record sharing the
// similarity key (amount, date, item name, uploader). Intentionally has no
// time window: two genuinely distinct expenses with identical key still
// collide, and the caller decides whether to force.
func CheckManualDuplicate(ctx context.Context, amount decimal.Decimal, invoiceDate string, itemName string, uploadedBy string) (*Invoice, error) {
	db := config.GetDB()
	var invoice Invoice
	err := db.WithContext(ctx).Where(
		"amount = ? AND invoice_date = ? AND item_name = ? AND uploaded_by = ? AND record_type = ?",
		amount.String(), invoiceDate, itemName, uploadedBy, RecordTypeManual,
	).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}
