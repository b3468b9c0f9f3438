package smartcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{name: "customer entity", code: "HERA.CRM.CUSTOMER.ENTITY.STANDARD.V1"},
		{name: "deep taxonomy", code: "HERA.SALON.TXN.APPOINTMENT.WALK_IN.BOOKING.V2"},
		{name: "numeric segments", code: "HERA.FIN.GL.ACCOUNT.4100.V1"},
		{name: "empty", code: "", wantErr: true},
		{name: "too few segments", code: "HERA.CRM.CUSTOMER.V1", wantErr: true},
		{name: "lowercase", code: "hera.crm.customer.entity.standard.v1", wantErr: true},
		{name: "missing version", code: "HERA.CRM.CUSTOMER.ENTITY.STANDARD", wantErr: true},
		{name: "bad version", code: "HERA.CRM.CUSTOMER.ENTITY.STANDARD.VX", wantErr: true},
		{name: "wrong vendor", code: "ACME.CRM.CUSTOMER.ENTITY.STANDARD.V1", wantErr: true},
		{name: "trailing dot", code: "HERA.CRM.CUSTOMER.ENTITY.STANDARD.V1.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := Validate(tt.code)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "HERA", parts.Vendor)
			assert.Equal(t, tt.code, parts.String())
		})
	}
}

func TestValidateParts(t *testing.T) {
	parts, err := Validate("HERA.SALON.TXN.APPOINTMENT.WALK_IN.V2")
	require.NoError(t, err)
	assert.Equal(t, "SALON", parts.Domain)
	assert.Equal(t, []string{"SALON", "TXN", "APPOINTMENT", "WALK_IN"}, parts.Segments)
	assert.Equal(t, 2, parts.Version)
}

// The heuristic table is pinned here on purpose: generated codes feed
// auto-posting rules downstream, so any template change must be deliberate.
func TestGenerate(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		payload map[string]any
		want    string
	}{
		{
			name:    "customer default subtype",
			table:   TableEntities,
			payload: map[string]any{"entity_type": "customer"},
			want:    "HERA.CRM.CUSTOMER.ENTITY.STANDARD.V1",
		},
		{
			name:  "category hint wins",
			table: TableEntities,
			payload: map[string]any{
				"entity_type": "product",
				"metadata":    map[string]any{"category": "hair care", "vip": true},
			},
			want: "HERA.INV.PRODUCT.ENTITY.HAIR_CARE.V1",
		},
		{
			name:  "channel hint",
			table: TableTransactions,
			payload: map[string]any{
				"transaction_type": "sale",
				"metadata":         map[string]any{"channel": "online"},
			},
			want: "HERA.SALES.TXN.ORDER.ONLINE.V1",
		},
		{
			name:  "vip flag",
			table: TableEntities,
			payload: map[string]any{
				"entity_type": "customer",
				"metadata":    map[string]any{"vip": true},
			},
			want: "HERA.CRM.CUSTOMER.ENTITY.VIP.V1",
		},
		{
			name:    "unknown type yields nothing",
			table:   TableEntities,
			payload: map[string]any{"entity_type": "spaceship"},
			want:    "",
		},
		{
			name:    "unknown table yields nothing",
			table:   "core_relationships",
			payload: map[string]any{"entity_type": "customer"},
			want:    "",
		},
		{
			name:    "guardrail audit",
			table:   TableTransactions,
			payload: map[string]any{"transaction_type": "guardrail_autofix"},
			want:    "HERA.SYSTEM.GUARDRAIL.AUTOFIX.STANDARD.V1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(tt.table, tt.payload)
			assert.Equal(t, tt.want, got)
			if got != "" {
				assert.True(t, Valid(got), "generated codes must validate")
			}
		})
	}
}
