package airtable

import (
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// Column names of the missions table.
const (
	FieldService       = "Service"
	FieldDescription   = "Description"
	FieldPrice         = "Price"
	FieldStatus        = "Status"
	FieldClientEmail   = "Client_Email"
	FieldInvoiceStatus = "Invoice_Status"
)

// MissionFields maps a mission to the six columns written on creation.
func MissionFields(m domain.Mission) map[string]interface{} {
	return map[string]interface{}{
		FieldService:       m.Service,
		FieldDescription:   m.Description,
		FieldPrice:         m.Price,
		FieldStatus:        m.Status,
		FieldClientEmail:   m.ClientEmail,
		FieldInvoiceStatus: m.InvoiceStatus,
	}
}

// StatusFields returns the fields of an update, skipping empty values.
func StatusFields(status, invoiceStatus string) map[string]interface{} {
	fields := make(map[string]interface{})
	if status != "" {
		fields[FieldStatus] = status
	}
	if invoiceStatus != "" {
		fields[FieldInvoiceStatus] = invoiceStatus
	}
	return fields
}

// MissionFromRecord reads a mission back from a row. Unknown or mistyped
// columns are left empty.
func MissionFromRecord(rec *domain.Record) domain.Mission {
	var m domain.Mission
	if rec == nil {
		return m
	}
	m.Service, _ = rec.Fields[FieldService].(string)
	m.Description, _ = rec.Fields[FieldDescription].(string)
	m.Status, _ = rec.Fields[FieldStatus].(string)
	m.ClientEmail, _ = rec.Fields[FieldClientEmail].(string)
	m.InvoiceStatus, _ = rec.Fields[FieldInvoiceStatus].(string)
	m.Price, _ = rec.Fields[FieldPrice].(float64)
	return m
}
