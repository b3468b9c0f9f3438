package guardrail

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/smartcode"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := New()
	require.NoError(t, err)
	return svc
}

func TestAutoFixInjectsOrganization(t *testing.T) {
	svc := newService(t)
	orgID := uuid.Must(uuid.NewV7())

	result := svc.AutoFix(smartcode.TableEntities,
		map[string]any{"entity_type": "customer", "entity_name": "Jane"},
		Context{OrganizationID: orgID})

	require.True(t, result.Fixed)
	assert.Equal(t, orgID.String(), result.Payload["organization_id"])
	assertHasFix(t, result, "inject_organization_id", "organization_id")
}

func TestAutoFixNormalizesEntityAlias(t *testing.T) {
	svc := newService(t)

	result := svc.AutoFix(smartcode.TableEntities, map[string]any{
		"organization_id": uuid.Must(uuid.NewV7()).String(),
		"entity_type":     "gl_account",
		"entity_name":     "Cash",
	}, Context{})

	assert.Equal(t, "account", result.Payload["entity_type"])
	meta, ok := result.Payload["metadata"].(map[string]any)
	require.True(t, ok, "alias defaults should be injected into metadata")
	assert.Equal(t, "GL", meta["ledger_type"])
	// Generated code follows the normalized type, not the alias.
	assert.Equal(t, "HERA.FIN.GL.ACCOUNT.STANDARD.V1", result.Payload["smart_code"])
}

func TestAutoFixKeepsExplicitFields(t *testing.T) {
	svc := newService(t)
	orgID := uuid.Must(uuid.NewV7()).String()

	result := svc.AutoFix(smartcode.TableEntities, map[string]any{
		"organization_id": orgID,
		"entity_type":     "customer",
		"smart_code":      "HERA.CRM.CUSTOMER.ENTITY.PREMIUM.V3",
	}, Context{OrganizationID: uuid.Must(uuid.NewV7())})

	assert.Equal(t, orgID, result.Payload["organization_id"])
	assert.Equal(t, "HERA.CRM.CUSTOMER.ENTITY.PREMIUM.V3", result.Payload["smart_code"])
	for _, f := range result.Fixes {
		assert.NotEqual(t, "organization_id", f.Field)
		assert.NotEqual(t, "smart_code", f.Field)
	}
}

func TestAutoFixNormalizesTransactionSynonym(t *testing.T) {
	svc := newService(t)

	result := svc.AutoFix(smartcode.TableTransactions, map[string]any{
		"organization_id":  uuid.Must(uuid.NewV7()).String(),
		"transaction_type": "pos_sale",
	}, Context{})

	assert.Equal(t, "sale", result.Payload["transaction_type"])
	assert.NotEmpty(t, result.Payload["transaction_code"], "server-assigned code expected")
	assert.NotEmpty(t, result.Payload["id"])
	assertHasFix(t, result, "normalize_transaction_type", "transaction_type")
}

// Synonym normalization runs before code generation, so a synonym type gets
// its code from the canonical template in the same run.
func TestAutoFixGeneratesCodeForSynonymTypes(t *testing.T) {
	svc := newService(t)

	result := svc.AutoFix(smartcode.TableTransactions, map[string]any{
		"organization_id":  uuid.Must(uuid.NewV7()).String(),
		"transaction_type": "pos_sale",
	}, Context{})

	assert.Equal(t, "sale", result.Payload["transaction_type"])
	assert.Equal(t, "HERA.SALES.TXN.ORDER.STANDARD.V1", result.Payload["smart_code"])
}

func TestAutoFixIdempotent(t *testing.T) {
	svc := newService(t)
	orgID := uuid.Must(uuid.NewV7())

	first := svc.AutoFix(smartcode.TableTransactions, map[string]any{
		"transaction_type": "booking",
		"total_amount":     120.0,
	}, Context{OrganizationID: orgID})
	require.True(t, first.Fixed)

	second := svc.AutoFix(smartcode.TableTransactions, first.Payload, Context{OrganizationID: orgID})
	assert.False(t, second.Fixed)
	assert.Empty(t, second.Fixes)
	assert.Equal(t, first.Payload, second.Payload)
}

func TestAutoFixConfidenceScores(t *testing.T) {
	svc := newService(t)

	result := svc.AutoFix(smartcode.TableEntities, map[string]any{
		"entity_type": "customer",
	}, Context{OrganizationID: uuid.Must(uuid.NewV7())})

	byField := map[string]Fix{}
	for _, f := range result.Fixes {
		byField[f.Field] = f
	}
	assert.InDelta(t, 1.0, byField["organization_id"].Confidence, 1e-9)
	assert.InDelta(t, 0.70, byField["smart_code"].Confidence, 1e-9)
}

func TestAuditTransaction(t *testing.T) {
	svc := newService(t)
	orgID := uuid.Must(uuid.NewV7())
	original := map[string]any{"entity_type": "client", "entity_name": "Amara"}

	result := svc.AutoFix(smartcode.TableEntities, original, Context{OrganizationID: orgID})
	audit := AuditTransaction(smartcode.TableEntities, orgID, original, result)

	assert.Equal(t, models.TxnTypeGuardrailAutofix, audit.TransactionType)
	assert.Equal(t, orgID, audit.OrganizationID)
	assert.Equal(t, original, audit.Metadata["original_payload"])
	assert.Equal(t, result.Payload, audit.Metadata["corrected_payload"])
	assert.NotEmpty(t, audit.Metadata["fixes"])
	// Original payload must be preserved untouched.
	assert.Equal(t, "client", original["entity_type"])
}

func assertHasFix(t *testing.T, result Result, pass, field string) {
	t.Helper()
	for _, f := range result.Fixes {
		if f.Pass == pass && f.Field == field {
			return
		}
	}
	t.Fatalf("expected fix %s/%s, got %+v", pass, field, result.Fixes)
}
