package main

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/zqywuxie/invoice-management/config"
	"github.com/zqywuxie/invoice-management/export"
	"github.com/zqywuxie/invoice-management/manager"
	"github.com/zqywuxie/invoice-management/models"
	"github.com/zqywuxie/invoice-management/utils"
)

type handlers struct {
	manager *manager.InvoiceManager
}

func newHandlers(m *manager.InvoiceManager) *handlers {
	return &handlers{manager: m}
}

func bindingErrors(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "验证失败",
			"errors":  utils.ProcessValidationErrors(err),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
}

// displayName is the identity recorded as uploader; falls back to username.
func displayName(c *gin.Context) string {
	if name, ok := utils.GetDisplayNameFromContext(c.Request.Context()); ok && name != "" {
		return name
	}
	name, _ := utils.GetUsernameFromContext(c.Request.Context())
	return name
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingErrors(c, err)
		return
	}

	user, err := models.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "用户名或密码错误"})
			return
		}
		config.LogError(c.Request.Context(), config.GetLogger(), "handlers", "login", "models.Authenticate", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "登录失败"})
		return
	}

	isAdmin := user.IsAdmin != nil && *user.IsAdmin
	token, err := utils.JwtGenerate(user.ID, user.Username, user.DisplayName, isAdmin)
	if err != nil {
		config.LogError(c.Request.Context(), config.GetLogger(), "handlers", "login", "utils.JwtGenerate", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "登录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user": gin.H{
			"id":           user.ID,
			"username":     user.Username,
			"display_name": user.DisplayName,
			"is_admin":     isAdmin,
		},
	})
}

func (h *handlers) listInvoices(c *gin.Context) {
	keyword := c.Query("keyword")
	recordType := c.Query("record_type")

	invoices, err := h.manager.SearchInvoices(c.Request.Context(), keyword)
	if err != nil {
		config.LogError(c.Request.Context(), config.GetLogger(), "handlers", "listInvoices", "manager.SearchInvoices", keyword, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "查询失败"})
		return
	}

	if recordType == models.RecordTypeInvoice || recordType == models.RecordTypeManual {
		filtered := invoices[:0]
		for _, invoice := range invoices {
			if invoice.RecordType == recordType {
				filtered = append(filtered, invoice)
			}
		}
		invoices = filtered
	}

	summary := h.manager.Summary(nil)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"invoices":       invoices,
		"total_count":    summary.TotalCount,
		"total_amount":   summary.TotalAmount.StringFixed(2),
		"invoice_count":  summary.InvoiceCount,
		"invoice_amount": summary.InvoiceAmount.StringFixed(2),
		"manual_count":   summary.ManualCount,
		"manual_amount":  summary.ManualAmount.StringFixed(2),
	})
}

type uploadInvoiceRequest struct {
	// RawText is the extracted text of one document. Binary-to-text
	// conversion happens outside this service.
	RawText    string `json:"raw_text" binding:"required"`
	SourcePath string `json:"source_path"`
}

func (h *handlers) uploadInvoice(c *gin.Context) {
	var req uploadInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingErrors(c, err)
		return
	}

	input := manager.BatchInput{
		RawText:    req.RawText,
		SourcePath: req.SourcePath,
		UploadedBy: displayName(c),
	}
	invoice, result, fieldErrs := h.manager.IngestDocument(c.Request.Context(), input)
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":            false,
			"is_invalid_invoice": true,
			"message":            "无法识别为有效发票",
			"errors":             fieldErrs,
		})
		return
	}
	if result.IsDuplicate {
		c.JSON(http.StatusConflict, gin.H{
			"success":          false,
			"is_duplicate":     true,
			"message":          result.Message,
			"invoice":          invoice,
			"original_invoice": result.OriginalInvoice,
		})
		return
	}
	if !result.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": result.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": result.Message, "invoice": invoice})
}

func (h *handlers) createManualRecord(c *gin.Context) {
	var req models.NewManualRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingErrors(c, err)
		return
	}

	result, fieldErrs := h.manager.AddManualRecord(c.Request.Context(), &req, displayName(c))
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "验证失败",
			"errors":  fieldErrs,
		})
		return
	}
	if result.IsDuplicateWarning {
		c.JSON(http.StatusConflict, gin.H{
			"success":              false,
			"is_duplicate_warning": true,
			"message":              result.Message,
			"similar_record":       result.OriginalInvoice,
		})
		return
	}
	if !result.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": result.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": result.Message, "record": result.OriginalInvoice})
}

type batchRequest struct {
	Inputs []manager.BatchInput `json:"inputs" binding:"required"`
}

func (h *handlers) processBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingErrors(c, err)
		return
	}

	uploader := displayName(c)
	for i := range req.Inputs {
		if req.Inputs[i].UploadedBy == "" {
			req.Inputs[i].UploadedBy = uploader
		}
	}

	result := h.manager.ProcessBatch(c.Request.Context(), req.Inputs)
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *handlers) summary(c *gin.Context) {
	filter := manager.SummaryFilter{
		RecordType: c.Query("record_type"),
		FromDate:   c.Query("from_date"),
		ToDate:     c.Query("to_date"),
	}
	summary := h.manager.Summary(&filter)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"total_count":    summary.TotalCount,
		"total_amount":   summary.TotalAmount.StringFixed(2),
		"invoice_count":  summary.InvoiceCount,
		"invoice_amount": summary.InvoiceAmount.StringFixed(2),
		"manual_count":   summary.ManualCount,
		"manual_amount":  summary.ManualAmount.StringFixed(2),
	})
}

func (h *handlers) getInvoice(c *gin.Context) {
	invoice := h.manager.GetInvoice(c.Param("number"))
	if invoice == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "发票不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invoice": invoice})
}

func (h *handlers) updateInvoice(c *gin.Context) {
	var fields manager.UpdateFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		bindingErrors(c, err)
		return
	}

	invoice, fieldErrs, err := h.manager.UpdateInvoice(c.Request.Context(), c.Param("number"), &fields)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvoiceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "发票不存在"})
		case errors.Is(err, models.ErrNotManualRecord):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "发票记录的解析字段不可修改"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "修改失败"})
		}
		return
	}
	if len(fieldErrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "验证失败",
			"errors":  fieldErrs,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "修改成功", "invoice": invoice})
}

func (h *handlers) deleteInvoice(c *gin.Context) {
	deleted, err := h.manager.DeleteInvoice(c.Request.Context(), c.Param("number"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "删除失败"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "发票不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "删除成功"})
}

type reimbursementStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *handlers) updateReimbursementStatus(c *gin.Context) {
	var req reimbursementStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingErrors(c, err)
		return
	}
	if req.Status != models.ReimbursementPending && req.Status != models.ReimbursementDone {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "无效的报销状态"})
		return
	}

	if err := h.manager.SetReimbursementStatus(c.Request.Context(), c.Param("number"), req.Status); err != nil {
		if errors.Is(err, models.ErrInvoiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "发票不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "更新失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "更新成功"})
}

func (h *handlers) exportExcel(c *gin.Context) {
	invoices, err := h.manager.SearchInvoices(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "查询失败"})
		return
	}

	var buf bytes.Buffer
	if err := export.WriteExcel(invoices, &buf); err != nil {
		config.LogError(c.Request.Context(), config.GetLogger(), "handlers", "exportExcel", "export.WriteExcel", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "导出失败"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		buf.Bytes())
}

func (h *handlers) createUser(c *gin.Context) {
	var req models.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingErrors(c, err)
		return
	}

	user, err := models.CreateUser(c.Request.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "用户名已存在"})
			return
		}
		config.LogError(c.Request.Context(), config.GetLogger(), "handlers", "createUser", "models.CreateUser", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "创建用户失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}
