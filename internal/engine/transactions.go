package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/heraerp/hera-core/internal/authz"
	"github.com/heraerp/hera-core/internal/errcode"
	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/smartcode"
	"github.com/heraerp/hera-core/internal/store"
)

func (e *Engine) transactionOp(req Request) operation {
	switch req.Action {
	case ActionCreate:
		return func(ctx context.Context) ([]any, error) { return e.createTransaction(ctx, req, false) }
	case ActionValidateRollback:
		return func(ctx context.Context) ([]any, error) { return e.createTransaction(ctx, req, true) }
	case ActionRead:
		return func(ctx context.Context) ([]any, error) { return e.readTransactions(ctx, req) }
	case ActionUpdate:
		return func(ctx context.Context) ([]any, error) { return e.updateTransaction(ctx, req) }
	case ActionDelete:
		return func(ctx context.Context) ([]any, error) { return e.deleteTransaction(ctx, req) }
	case ActionApprove:
		return func(ctx context.Context) ([]any, error) { return e.approveTransaction(ctx, req) }
	}
	return nil
}

func (e *Engine) createTransaction(ctx context.Context, req Request, dryRun bool) ([]any, error) {
	orgID := *req.OrganizationID
	res := e.applyGuardrail(ctx, TableTransactions, req)
	payload := res.Payload

	if payloadOrg, ok, err := payloadUUID(payload, "organization_id"); err != nil {
		return nil, err
	} else if ok {
		if err := authz.CheckSameOrg(orgID, payloadOrg, "payload organization_id"); err != nil {
			return nil, err
		}
	}

	txn, err := decodeTransaction(orgID, payload)
	if err != nil {
		return nil, err
	}
	if err := validateRelationshipInputs(req.Relationships); err != nil {
		return nil, err
	}
	if dryRun {
		return []any{dryRunItem(res)}, nil
	}

	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		for _, ref := range []uuid.UUID{txn.SourceEntityID, txn.TargetEntityID} {
			if ref == uuid.Nil {
				continue
			}
			if _, err := s.Entities().GetEntity(ctx, orgID, ref); err != nil {
				return err
			}
		}
		if err := s.Transactions().CreateTransaction(ctx, txn); err != nil {
			return err
		}
		for _, in := range req.Relationships {
			if err := upsertRequestedRelationship(ctx, s, orgID, txn.ID, in); err != nil {
				return err
			}
		}
		if err := writeAudit(ctx, s, TableTransactions, orgID, req.Payload, res); err != nil {
			return err
		}
		if req.Options.InitialStatusID != nil {
			return e.workflow.AssignInitialStatus(ctx, s, orgID, txn.ID, *req.Options.InitialStatusID, *req.ActorUserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	item, err := e.transactionItem(ctx, orgID, txn.ID, req.Options)
	if err != nil {
		return nil, err
	}
	return []any{item}, nil
}

func (e *Engine) readTransactions(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	f := req.Options.Filters
	txns, err := e.runner.Transactions().ListTransactions(ctx, orgID, store.TransactionFilter{
		ID:              f.ID,
		TransactionType: f.Type,
		TransactionCode: f.Code,
		Status:          f.Status,
		Limit:           req.Options.Limit,
		Offset:          req.Options.Offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(txns))
	for _, txn := range txns {
		if req.Options.IncludeLines {
			lines, err := e.runner.Transactions().ListLines(ctx, orgID, txn.ID)
			if err != nil {
				return nil, err
			}
			txn.Lines = lines
		}
		items = append(items, txn)
	}
	return items, nil
}

func (e *Engine) updateTransaction(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	id, ok, err := payloadUUID(req.Payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"id\" is required for UPDATE")
	}

	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		txn, err := s.Transactions().GetTransaction(ctx, orgID, id)
		if err != nil {
			return err
		}
		if err := mergeTransaction(txn, req.Payload); err != nil {
			return err
		}
		return s.Transactions().UpdateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	item, err := e.transactionItem(ctx, orgID, id, req.Options)
	if err != nil {
		return nil, err
	}
	return []any{item}, nil
}

func (e *Engine) deleteTransaction(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	id, ok, err := payloadUUID(req.Payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"id\" is required for DELETE")
	}

	var hard bool
	err = e.runner.WithinTx(ctx, func(s store.Stores) error {
		txn, err := s.Transactions().GetTransaction(ctx, orgID, id)
		if err != nil {
			return err
		}
		if req.Options.HardDelete {
			if txn.TransactionType == models.TxnTypeGuardrailAutofix {
				return errcode.New(errcode.InvalidRequest, "guardrail audit transactions are immutable")
			}
			hard = true
			return s.Transactions().HardDeleteTransaction(ctx, orgID, id)
		}
		return s.Transactions().SetTransactionStatus(ctx, orgID, id, models.TxnStatusInactive)
	})
	if err != nil {
		return nil, err
	}

	if hard {
		return []any{map[string]any{"id": id, "hard_deleted": true}}, nil
	}
	item, err := e.transactionItem(ctx, orgID, id, req.Options)
	if err != nil {
		return nil, err
	}
	return []any{item}, nil
}

// approveTransaction is idempotent for approved transactions: re-approving
// is a no-op success. Any status other than pending or approved is rejected.
func (e *Engine) approveTransaction(ctx context.Context, req Request) ([]any, error) {
	orgID := *req.OrganizationID
	id, ok, err := payloadUUID(req.Payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.New(errcode.MissingRequiredField, "field \"id\" is required for APPROVE")
	}
	if _, err := e.runner.Transactions().ApproveTransaction(ctx, orgID, id); err != nil {
		return nil, err
	}
	item, err := e.transactionItem(ctx, orgID, id, req.Options)
	if err != nil {
		return nil, err
	}
	return []any{item}, nil
}

func (e *Engine) transactionItem(ctx context.Context, orgID, id uuid.UUID, opts Options) (*models.Transaction, error) {
	txn, err := e.runner.Transactions().GetTransaction(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if opts.IncludeLines {
		lines, err := e.runner.Transactions().ListLines(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		txn.Lines = lines
	}
	return txn, nil
}

func decodeTransaction(orgID uuid.UUID, payload map[string]any) (*models.Transaction, error) {
	id, ok, err := payloadUUID(payload, "id")
	if err != nil {
		return nil, err
	}
	if !ok {
		id = uuid.Must(uuid.NewV7())
	}
	txnType, err := requireString(payload, "transaction_type")
	if err != nil {
		return nil, err
	}
	txnCode, err := requireString(payload, "transaction_code")
	if err != nil {
		return nil, err
	}
	code, err := validateSmartCode(payload)
	if err != nil {
		return nil, err
	}
	sourceID, _, err := payloadUUID(payload, "source_entity_id")
	if err != nil {
		return nil, err
	}
	targetID, _, err := payloadUUID(payload, "target_entity_id")
	if err != nil {
		return nil, err
	}
	total, _, err := payloadNumber(payload, "total_amount")
	if err != nil {
		return nil, err
	}
	txnDate, _, err := payloadTime(payload, "transaction_date")
	if err != nil {
		return nil, err
	}
	status, _, err := payloadString(payload, "status")
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = models.TxnStatusPending
	}
	metadata, _, err := payloadMap(payload, "metadata")
	if err != nil {
		return nil, err
	}
	lines, err := decodeLines(orgID, id, code, payload)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		ID:              id,
		OrganizationID:  orgID,
		TransactionType: txnType,
		TransactionCode: txnCode,
		SmartCode:       code,
		SourceEntityID:  sourceID,
		TargetEntityID:  targetID,
		TotalAmount:     total,
		TransactionDate: txnDate,
		Status:          status,
		Metadata:        metadata,
		Lines:           lines,
	}, nil
}

// decodeLines reads the optional "lines" array. Line order is preserved;
// the store re-numbers contiguously from 1. Lines without a smart code
// inherit the header's.
func decodeLines(orgID, txnID uuid.UUID, headerCode string, payload map[string]any) ([]*models.TransactionLine, error) {
	raw, ok := payload["lines"]
	if !ok || raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, errcode.New(errcode.TypeMismatch, "field \"lines\" must be an array")
	}
	lines := make([]*models.TransactionLine, 0, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errcode.Newf(errcode.TypeMismatch, "line %d must be an object", i+1)
		}
		lineType, _, err := payloadString(m, "line_type")
		if err != nil {
			return nil, err
		}
		quantity, _, err := payloadNumber(m, "quantity")
		if err != nil {
			return nil, err
		}
		unitAmount, _, err := payloadNumber(m, "unit_amount")
		if err != nil {
			return nil, err
		}
		lineAmount, _, err := payloadNumber(m, "line_amount")
		if err != nil {
			return nil, err
		}
		lineCode, _, err := payloadString(m, "smart_code")
		if err != nil {
			return nil, err
		}
		if lineCode == "" {
			lineCode = headerCode
		} else if _, err := smartcode.Validate(lineCode); err != nil {
			return nil, err
		}
		lineData, _, err := payloadMap(m, "line_data")
		if err != nil {
			return nil, err
		}
		lines = append(lines, &models.TransactionLine{
			ID:             uuid.Must(uuid.NewV7()),
			OrganizationID: orgID,
			TransactionID:  txnID,
			LineType:       lineType,
			Quantity:       quantity,
			UnitAmount:     unitAmount,
			LineAmount:     lineAmount,
			SmartCode:      lineCode,
			LineData:       lineData,
		})
	}
	return lines, nil
}

// mergeTransaction applies the fields UPDATE may touch. Type, code, and
// lines are fixed at creation.
func mergeTransaction(txn *models.Transaction, payload map[string]any) error {
	if v, ok, err := payloadNumber(payload, "total_amount"); err != nil {
		return err
	} else if ok {
		txn.TotalAmount = v
	}
	if v, ok, err := payloadTime(payload, "transaction_date"); err != nil {
		return err
	} else if ok {
		txn.TransactionDate = v
	}
	if v, ok, err := payloadString(payload, "status"); err != nil {
		return err
	} else if ok {
		txn.Status = v
	}
	if v, ok, err := payloadMap(payload, "metadata"); err != nil {
		return err
	} else if ok {
		txn.Metadata = v
	}
	return nil
}
