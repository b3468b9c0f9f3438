package guardrail

import (
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/models"
)

// AuditTransaction builds the immutable audit record for one auto-fix run:
// a guardrail_autofix transaction holding the original payload, the corrected
// payload and the fix list. Written even when the fix list is empty, so the
// absence of corrections is itself auditable.
func AuditTransaction(table string, orgID uuid.UUID, original map[string]any, result Result) *models.Transaction {
	fixes := make([]any, 0, len(result.Fixes))
	for _, f := range result.Fixes {
		fixes = append(fixes, map[string]any{
			"pass":       f.Pass,
			"field":      f.Field,
			"before":     f.Before,
			"after":      f.After,
			"confidence": f.Confidence,
		})
	}
	now := time.Now().UTC()
	return &models.Transaction{
		ID:              uuid.Must(uuid.NewV7()),
		OrganizationID:  orgID,
		TransactionType: models.TxnTypeGuardrailAutofix,
		TransactionCode: "GRA-" + uuid.Must(uuid.NewV7()).String(),
		SmartCode:       "HERA.SYSTEM.GUARDRAIL.AUTOFIX.STANDARD.V1",
		TransactionDate: now,
		Status:          models.TxnStatusApproved,
		Metadata: map[string]any{
			"table":             table,
			"original_payload":  original,
			"corrected_payload": result.Payload,
			"fixes":             fixes,
			"fixed":             result.Fixed,
		},
	}
}
