// Package guardrail pre-processes CREATE-class payloads before they reach
// the validator and stores: deterministic, ordered correction passes that
// normalize client vocabulary, inject missing server-assigned fields and log
// every correction. Auto-fix never rejects a payload; whatever is still
// wrong afterwards surfaces through the normal validation path.
package guardrail

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/heraerp/hera-core/internal/smartcode"
)

// Confidence levels per pass. Exact lookup-table matches are near certain;
// smart code generation leans on metadata sniffing and scores lower.
const (
	confidenceInjected  = 1.0
	confidenceAlias     = 0.95
	confidenceGenerated = 0.70
	confidenceTxnCode   = 0.90
)

// Fix records one applied correction.
type Fix struct {
	Pass       string  `json:"pass"`
	Field      string  `json:"field"`
	Before     any     `json:"before,omitempty"`
	After      any     `json:"after"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one auto-fix run.
type Result struct {
	Fixed   bool
	Payload map[string]any
	Fixes   []Fix
}

// Context carries the session facts the passes may inject from.
type Context struct {
	OrganizationID uuid.UUID
}

// Service runs the correction passes. Construct once; the rule tables are
// immutable after load.
type Service struct {
	rules *Rules
}

// New loads the embedded rule tables.
func New() (*Service, error) {
	rules, err := LoadRules()
	if err != nil {
		return nil, err
	}
	return &Service{rules: rules}, nil
}

// AutoFix runs the ordered passes over a copy of the payload. Each pass is
// independent and skipped when the field it would fix is already present,
// which makes the whole run idempotent. Type normalization runs before code
// generation so generated codes always follow the canonical taxonomy.
func (s *Service) AutoFix(table string, payload map[string]any, ctx Context) Result {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	var fixes []Fix

	fixes = s.injectOrganization(out, ctx, fixes)
	if table == smartcode.TableEntities {
		fixes = s.normalizeEntityType(out, fixes)
	}
	if table == smartcode.TableTransactions {
		fixes = s.normalizeTransactionType(out, fixes)
	}
	fixes = s.generateSmartCode(table, out, fixes)
	fixes = s.injectServerFields(table, out, fixes)

	if len(fixes) > 0 {
		log.Debug().Str("table", table).Int("fixes", len(fixes)).Msg("Guardrail corrected payload")
	}
	return Result{Fixed: len(fixes) > 0, Payload: out, Fixes: fixes}
}

// Pass 1: inject organization_id from the session context when absent.
func (s *Service) injectOrganization(payload map[string]any, ctx Context, fixes []Fix) []Fix {
	if str, ok := payload["organization_id"].(string); ok && str != "" {
		return fixes
	}
	payload["organization_id"] = ctx.OrganizationID.String()
	return append(fixes, Fix{
		Pass:       "inject_organization_id",
		Field:      "organization_id",
		After:      ctx.OrganizationID.String(),
		Confidence: confidenceInjected,
	})
}

// Pass 2: normalize entity_type aliases and inject the dependent defaults the
// canonical form requires.
func (s *Service) normalizeEntityType(payload map[string]any, fixes []Fix) []Fix {
	entityType, _ := payload["entity_type"].(string)
	alias, ok := s.rules.EntityAliases[entityType]
	if !ok {
		return fixes
	}
	payload["entity_type"] = alias.Canonical
	fixes = append(fixes, Fix{
		Pass:       "normalize_entity_type",
		Field:      "entity_type",
		Before:     entityType,
		After:      alias.Canonical,
		Confidence: confidenceAlias,
	})
	if len(alias.Defaults) == 0 {
		return fixes
	}
	meta, _ := payload["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		payload["metadata"] = meta
	}
	for key, value := range alias.Defaults {
		if _, present := meta[key]; present {
			continue
		}
		meta[key] = value
		fixes = append(fixes, Fix{
			Pass:       "normalize_entity_type",
			Field:      "metadata." + key,
			After:      value,
			Confidence: confidenceAlias,
		})
	}
	return fixes
}

// Pass 3: generate a smart code when absent and inferable. Left absent when
// no mapping exists; the validator rejects downstream.
func (s *Service) generateSmartCode(table string, payload map[string]any, fixes []Fix) []Fix {
	if code, ok := payload["smart_code"].(string); ok && code != "" {
		return fixes
	}
	code := smartcode.Generate(table, payload)
	if code == "" {
		return fixes
	}
	payload["smart_code"] = code
	return append(fixes, Fix{
		Pass:       "generate_smart_code",
		Field:      "smart_code",
		After:      code,
		Confidence: confidenceGenerated,
	})
}

// Pass 4: normalize transaction_type synonyms via the fixed lookup table.
func (s *Service) normalizeTransactionType(payload map[string]any, fixes []Fix) []Fix {
	txnType, _ := payload["transaction_type"].(string)
	canonical, ok := s.rules.TransactionSynonyms[txnType]
	if !ok {
		return fixes
	}
	payload["transaction_type"] = canonical
	return append(fixes, Fix{
		Pass:       "normalize_transaction_type",
		Field:      "transaction_type",
		Before:     txnType,
		After:      canonical,
		Confidence: confidenceAlias,
	})
}

// Pass 5: inject server-assigned id, creation timestamp and, for
// transactions, a generated transaction_code.
func (s *Service) injectServerFields(table string, payload map[string]any, fixes []Fix) []Fix {
	if id, ok := payload["id"].(string); !ok || id == "" {
		generated := uuid.Must(uuid.NewV7()).String()
		payload["id"] = generated
		fixes = append(fixes, Fix{
			Pass:       "inject_server_fields",
			Field:      "id",
			After:      generated,
			Confidence: confidenceInjected,
		})
	}
	if ts, ok := payload["created_at"].(string); !ok || ts == "" {
		now := time.Now().UTC().Format(time.RFC3339)
		payload["created_at"] = now
		fixes = append(fixes, Fix{
			Pass:       "inject_server_fields",
			Field:      "created_at",
			After:      now,
			Confidence: confidenceInjected,
		})
	}
	if table != smartcode.TableTransactions {
		return fixes
	}
	if code, ok := payload["transaction_code"].(string); !ok || code == "" {
		generated := generateTransactionCode()
		payload["transaction_code"] = generated
		fixes = append(fixes, Fix{
			Pass:       "inject_server_fields",
			Field:      "transaction_code",
			After:      generated,
			Confidence: confidenceTxnCode,
		})
	}
	return fixes
}

// generateTransactionCode builds a human-pasteable unique business key.
func generateTransactionCode() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "TXN-" + base58.Encode(buf)
}
