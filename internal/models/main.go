// Package models defines the core data structures for templates and
// extension messaging.
package models

// Template is a named, ordered set of field definitions the user wants
// auto-filled into a web form. The backend owns the template lifecycle;
// the extension only reads templates and reports usage.
//
// JSON tags follow the backend wire format (Portuguese field names).
type Template struct {
	// ID is the backend-assigned identifier.
	ID int64 `json:"id,omitempty"`
	// Name is the user-visible template name.
	Name string `json:"nome"`
	// Description is an optional free-form note. May arrive
	// ciphertext-encoded.
	Description string `json:"descricao,omitempty"`
	// UserID scopes the template to its owner.
	UserID int64 `json:"usuarioId,omitempty"`
	// Fields is the ordered list of fields to fill.
	Fields []Field `json:"campos"`
	// TotalUsageCount is the number of recorded fills.
	TotalUsageCount int `json:"totalUso,omitempty"`
	// LastUsedAt is the timestamp of the last recorded fill (backend
	// formatted, passed through opaquely).
	LastUsedAt string `json:"ultimoUso,omitempty"`
}

// Field is one (name, value, type) triple inside a template. Value,
// Description and Placeholder may arrive ciphertext-encoded and must be
// run through the cryptofield decoder before display or fill.
type Field struct {
	ID int64 `json:"id,omitempty"`
	// Name identifies the target form field.
	Name string `json:"nome"`
	// Value is the text to fill, possibly ciphertext-encoded.
	Value string `json:"valor"`
	// Type is free-form: "text", "email", "password", "select", ...
	Type string `json:"tipo"`
	// Order is the position inside the template.
	Order int `json:"ordem,omitempty"`
	// Placeholder mirrors the page hint the user recorded, possibly
	// ciphertext-encoded.
	Placeholder string `json:"placeholder,omitempty"`
	// Description is an optional note, possibly ciphertext-encoded.
	Description string `json:"descricao,omitempty"`
}

// Message is the extension-internal envelope exchanged between popup,
// content script and background coordinator.
type Message struct {
	// Action selects the coordinator operation.
	Action string `json:"action"`
	// Template carries the payload for saveTemplate.
	Template *Template `json:"template,omitempty"`
	// TemplateID targets recordUsage and template_* notifications.
	TemplateID int64 `json:"templateId,omitempty"`
	// TemplateName is informational on template_* notifications.
	TemplateName string `json:"templateName,omitempty"`
	// Success is the payload of recordUsage.
	Success bool `json:"success,omitempty"`
}

// Response is the reply envelope for every coordinator message.
type Response struct {
	Success bool `json:"success"`
	// Error is set when Success is false.
	Error string `json:"error,omitempty"`
	// Message is an optional human-readable status.
	Message string `json:"message,omitempty"`
	// Templates is the payload of getTemplates.
	Templates []Template `json:"templates,omitempty"`
	// Template is the payload of saveTemplate.
	Template *Template `json:"template,omitempty"`
}

// Known coordinator actions.
const (
	ActionGetTemplates    = "getTemplates"
	ActionSaveTemplate    = "saveTemplate"
	ActionRecordUsage     = "recordUsage"
	ActionPing            = "ping"
	ActionTemplateCreated = "template_created"
	ActionTemplateUpdated = "template_updated"
	ActionTemplateDeleted = "template_deleted"
)
