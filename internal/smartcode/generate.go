package smartcode

import (
	"strings"
)

// Tables the generator knows how to infer codes for.
const (
	TableEntities      = "core_entities"
	TableTransactions  = "universal_transactions"
	TableRelationships = "core_relationships"
	TableDynamicData   = "core_dynamic_data"
)

// entityTemplates maps an entity_type to a code template with a %s subtype
// placeholder. Types without a template get no generated code; the caller
// must supply one explicitly.
var entityTemplates = map[string]string{
	"customer":          "HERA.CRM.CUSTOMER.ENTITY.%s.V1",
	"staff":             "HERA.HR.STAFF.ENTITY.%s.V1",
	"product":           "HERA.INV.PRODUCT.ENTITY.%s.V1",
	"service":           "HERA.SALON.SERVICE.ENTITY.%s.V1",
	"account":           "HERA.FIN.GL.ACCOUNT.%s.V1",
	"branch":            "HERA.ORG.BRANCH.ENTITY.%s.V1",
	"vendor":            "HERA.SCM.VENDOR.ENTITY.%s.V1",
	"workflow_template": "HERA.WORKFLOW.TEMPLATE.ENTITY.%s.V1",
	"workflow_status":   "HERA.WORKFLOW.STATUS.ENTITY.%s.V1",
}

// transactionTemplates maps a transaction_type to a code template.
var transactionTemplates = map[string]string{
	"sale":              "HERA.SALES.TXN.ORDER.%s.V1",
	"appointment":       "HERA.SALON.TXN.APPOINTMENT.%s.V1",
	"payment":           "HERA.FIN.TXN.PAYMENT.%s.V1",
	"journal_entry":     "HERA.FIN.GL.JOURNAL.%s.V1",
	"purchase":          "HERA.SCM.TXN.PURCHASE.%s.V1",
	"guardrail_autofix": "HERA.SYSTEM.GUARDRAIL.AUTOFIX.%s.V1",
}

// defaultSubtype is used when no metadata hint narrows the classification.
const defaultSubtype = "STANDARD"

// Generate infers a smart code from record shape: the entity_type or
// transaction_type selects a template, metadata hints (category, channel,
// vip flag) select the subtype. Best effort: returns "" when no mapping
// exists, in which case the caller must supply a code or fail validation.
//
// Generated codes are suggestions. They always go through Validate before
// being persisted.
func Generate(table string, payload map[string]any) string {
	var template string
	switch table {
	case TableEntities:
		template = entityTemplates[stringField(payload, "entity_type")]
	case TableTransactions:
		template = transactionTemplates[stringField(payload, "transaction_type")]
	default:
		return ""
	}
	if template == "" {
		return ""
	}
	return strings.Replace(template, "%s", subtypeOf(payload), 1)
}

// subtypeOf sniffs metadata hints in a fixed order: explicit category first,
// then channel, then the VIP flag. Heuristic by design; confidence scoring
// happens in the guardrail layer.
func subtypeOf(payload map[string]any) string {
	meta, _ := payload["metadata"].(map[string]any)
	if meta == nil {
		return defaultSubtype
	}
	if category := sanitizeSegment(stringField(meta, "category")); category != "" {
		return category
	}
	if channel := sanitizeSegment(stringField(meta, "channel")); channel != "" {
		return channel
	}
	if vip, ok := meta["vip"].(bool); ok && vip {
		return "VIP"
	}
	return defaultSubtype
}

// sanitizeSegment upcases and strips characters that are not legal inside a
// code segment. Returns "" when nothing legal remains.
func sanitizeSegment(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-':
			b.WriteRune('_')
		}
	}
	return b.String()
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
