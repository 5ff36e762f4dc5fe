// Package export renders ledger records to Excel. It consumes what the
// manager's load/search operations return and does no querying of its own.
package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/zqywuxie/invoice-management/models"
)

const sheetName = "发票汇总"

var headers = []string{
	"发票号码",
	"记录类型",
	"开票日期",
	"项目名称",
	"金额",
	"备注",
	"源文件路径",
	"扫描时间",
	"上传人",
	"报销状态",
}

func recordTypeLabel(invoice *models.Invoice) string {
	if invoice.IsManual() {
		return "手动记录"
	}
	return "发票"
}

// WriteExcel renders the records to an xlsx workbook on w. Amounts are
// written as exact two-decimal strings, not floats, so the exported file
// matches what the ledger stores.
func WriteExcel(invoices []*models.Invoice, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, invoice := range invoices {
		row := i + 2
		values := []interface{}{
			invoice.InvoiceNumber,
			recordTypeLabel(invoice),
			invoice.InvoiceDate,
			invoice.ItemName,
			invoice.Amount.StringFixed(2),
			invoice.Remark,
			invoice.FilePath,
			invoice.ScanTime.Format("2006-01-02 15:04:05"),
			invoice.UploadedBy,
			invoice.ReimbursementStatus,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	// Keep columns readable without measuring content.
	for col := range headers {
		name, _ := excelize.ColumnNumberToName(col + 1)
		f.SetColWidth(sheetName, name, name, 18)
	}

	return f.Write(w)
}
