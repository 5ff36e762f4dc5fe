// Package dedup holds the in-memory duplicate index for the invoice ledger.
// The detector is an owned object: the manager constructs it from the
// persisted record set at startup and is the only writer afterwards.
package dedup

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zqywuxie/invoice-management/models"
)

// Detector answers membership questions about the current record set.
//
// Hard key: the invoice number, exact match, O(1). A hit is always a
// rejection. Soft key: (amount, date, item name, uploader) over manual
// records only, a warning the caller may override.
//
// Not safe for concurrent use on its own; the owning manager serializes
// access under its lock.
type Detector struct {
	byNumber  map[string]*models.Invoice
	bySoftKey map[string]*models.Invoice
}

// NewDetector builds the index from the full persisted record set.
func NewDetector(existing []*models.Invoice) *Detector {
	d := &Detector{
		byNumber:  make(map[string]*models.Invoice, len(existing)),
		bySoftKey: make(map[string]*models.Invoice),
	}
	for _, invoice := range existing {
		d.Register(invoice)
	}
	return d
}

// SoftKey builds the similarity key for manual entries. Amounts go through
// decimal.String so 50, 50.0 and 50.00 produce the same key.
func SoftKey(amount decimal.Decimal, invoiceDate string, itemName string, uploadedBy string) string {
	return strings.Join([]string{amount.String(), invoiceDate, itemName, uploadedBy}, "\x1f")
}

// IsDuplicate reports a hard invoice-number collision.
func (d *Detector) IsDuplicate(invoiceNumber string) bool {
	_, ok := d.byNumber[invoiceNumber]
	return ok
}

// GetOriginal returns the record holding the number, or nil.
func (d *Detector) GetOriginal(invoiceNumber string) *models.Invoice {
	return d.byNumber[invoiceNumber]
}

// FindSimilarManual returns an existing manual record with the same soft
// key, or nil. Only manual records participate; invoice-backed records are
// covered by the hard key.
func (d *Detector) FindSimilarManual(amount decimal.Decimal, invoiceDate string, itemName string, uploadedBy string) *models.Invoice {
	return d.bySoftKey[SoftKey(amount, invoiceDate, itemName, uploadedBy)]
}

// Register adds a record to both indexes. Manual records also enter the
// soft-key index.
func (d *Detector) Register(invoice *models.Invoice) {
	d.byNumber[invoice.InvoiceNumber] = invoice
	if invoice.IsManual() {
		d.bySoftKey[SoftKey(invoice.Amount, invoice.InvoiceDate, invoice.ItemName, invoice.UploadedBy)] = invoice
	}
}

// Remove drops a record from both indexes. Returns false when the number
// was not present.
func (d *Detector) Remove(invoiceNumber string) bool {
	invoice, ok := d.byNumber[invoiceNumber]
	if !ok {
		return false
	}
	delete(d.byNumber, invoiceNumber)
	if invoice.IsManual() {
		key := SoftKey(invoice.Amount, invoice.InvoiceDate, invoice.ItemName, invoice.UploadedBy)
		if current, ok := d.bySoftKey[key]; ok && current.InvoiceNumber == invoiceNumber {
			delete(d.bySoftKey, key)
		}
	}
	return true
}

// Len reports the number of indexed records.
func (d *Detector) Len() int {
	return len(d.byNumber)
}
