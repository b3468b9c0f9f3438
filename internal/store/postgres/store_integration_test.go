//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/heraerp/hera-core/internal/models"
	"github.com/heraerp/hera-core/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*Store, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &Config{
		Pool:        PoolConfig{ConnString: connString},
		AutoMigrate: true, // Enable migrations for tests
	}

	st, err := New(ctx, cfg)
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		_ = container.Terminate(ctx)
	}

	return st, cleanup
}

func setupOrganization(t *testing.T, ctx context.Context, st *Store) uuid.UUID {
	org := &models.Organization{
		ID:     uuid.Must(uuid.NewV7()),
		Name:   "Test Clinic",
		Status: models.OrgStatusActive,
	}
	require.NoError(t, st.Organizations().CreateOrganization(ctx, org))
	return org.ID
}

func TestIntegration_EntityLifecycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID := setupOrganization(t, ctx, st)

	e := &models.Entity{
		ID:             uuid.Must(uuid.NewV7()),
		OrganizationID: orgID,
		EntityType:     "customer",
		EntityName:     "Jane Smith",
		EntityCode:     "CUST-001",
		SmartCode:      "HERA.SALON.CRM.CUSTOMER.PROFILE.V1",
	}

	t.Run("create entity", func(t *testing.T) {
		require.NoError(t, st.Entities().CreateEntity(ctx, e))
		require.False(t, e.CreatedAt.IsZero())
		require.Equal(t, models.StatusActive, e.Status)
	})

	t.Run("get entity", func(t *testing.T) {
		got, err := st.Entities().GetEntity(ctx, orgID, e.ID)
		require.NoError(t, err)
		require.Equal(t, "Jane Smith", got.EntityName)
	})

	t.Run("upsert dynamic field twice keeps one row", func(t *testing.T) {
		email := "jane@example.com"
		f := &models.DynamicField{
			OrganizationID: orgID,
			EntityID:       e.ID,
			FieldName:      "email",
			FieldType:      models.FieldTypeText,
			ValueText:      &email,
			SmartCode:      "HERA.CORE.DYNAMIC.FIELD.STANDARD.V1",
		}
		require.NoError(t, st.Entities().UpsertDynamicField(ctx, f))
		firstID := f.ID

		updated := "jane.smith@example.com"
		f2 := &models.DynamicField{
			OrganizationID: orgID,
			EntityID:       e.ID,
			FieldName:      "email",
			FieldType:      models.FieldTypeText,
			ValueText:      &updated,
			SmartCode:      "HERA.CORE.DYNAMIC.FIELD.STANDARD.V1",
		}
		require.NoError(t, st.Entities().UpsertDynamicField(ctx, f2))
		require.Equal(t, firstID, f2.ID)

		fields, err := st.Entities().ListDynamicFields(ctx, orgID, e.ID)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		require.Equal(t, updated, *fields[0].ValueText)
	})

	t.Run("entity invisible to other organizations", func(t *testing.T) {
		otherOrg := setupOrganization(t, ctx, st)
		_, err := st.Entities().GetEntity(ctx, otherOrg, e.ID)
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})

	t.Run("hard delete cascades to fields", func(t *testing.T) {
		require.NoError(t, st.Entities().HardDeleteEntity(ctx, orgID, e.ID))
		_, err := st.Entities().GetEntity(ctx, orgID, e.ID)
		require.ErrorIs(t, err, store.ErrEntityNotFound)
		_, err = st.Entities().ListDynamicFields(ctx, orgID, e.ID)
		require.ErrorIs(t, err, store.ErrEntityNotFound)
	})
}

func TestIntegration_TransactionCodeUnique(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID := setupOrganization(t, ctx, st)

	txn := &models.Transaction{
		OrganizationID:  orgID,
		TransactionType: "sale",
		TransactionCode: "TXN-SALE-001",
		SmartCode:       "HERA.SALON.SALE.TXN.SERVICE.V1",
		TotalAmount:     150,
	}
	require.NoError(t, st.Transactions().CreateTransaction(ctx, txn))

	t.Run("duplicate code rejected case-insensitively", func(t *testing.T) {
		dup := &models.Transaction{
			OrganizationID:  orgID,
			TransactionType: "sale",
			TransactionCode: "txn-sale-001",
			SmartCode:       "HERA.SALON.SALE.TXN.SERVICE.V1",
		}
		err := st.Transactions().CreateTransaction(ctx, dup)
		require.ErrorIs(t, err, store.ErrDuplicateTransactionCode)
	})

	t.Run("same code allowed in another organization", func(t *testing.T) {
		otherOrg := setupOrganization(t, ctx, st)
		other := &models.Transaction{
			OrganizationID:  otherOrg,
			TransactionType: "sale",
			TransactionCode: "TXN-SALE-001",
			SmartCode:       "HERA.SALON.SALE.TXN.SERVICE.V1",
		}
		require.NoError(t, st.Transactions().CreateTransaction(ctx, other))
	})

	t.Run("approve is idempotent", func(t *testing.T) {
		changed, err := st.Transactions().ApproveTransaction(ctx, orgID, txn.ID)
		require.NoError(t, err)
		require.True(t, changed)

		changed, err = st.Transactions().ApproveTransaction(ctx, orgID, txn.ID)
		require.NoError(t, err)
		require.False(t, changed)
	})

	t.Run("approve rejects non-pending status", func(t *testing.T) {
		inactive := &models.Transaction{
			OrganizationID:  orgID,
			TransactionType: "sale",
			TransactionCode: "TXN-SALE-002",
			SmartCode:       "HERA.SALON.SALE.TXN.SERVICE.V1",
		}
		require.NoError(t, st.Transactions().CreateTransaction(ctx, inactive))
		require.NoError(t, st.Transactions().SetTransactionStatus(ctx, orgID, inactive.ID, models.TxnStatusInactive))

		changed, err := st.Transactions().ApproveTransaction(ctx, orgID, inactive.ID)
		require.ErrorIs(t, err, store.ErrTransactionNotPending)
		require.False(t, changed)

		got, err := st.Transactions().GetTransaction(ctx, orgID, inactive.ID)
		require.NoError(t, err)
		require.Equal(t, models.TxnStatusInactive, got.Status)
	})
}

func TestIntegration_TransactionLines(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID := setupOrganization(t, ctx, st)

	txn := &models.Transaction{
		OrganizationID:  orgID,
		TransactionType: "sale",
		TransactionCode: "TXN-SALE-100",
		SmartCode:       "HERA.SALON.SALE.TXN.SERVICE.V1",
		Lines: []*models.TransactionLine{
			{LineType: "service", Quantity: 1, UnitAmount: 80, LineAmount: 80, SmartCode: "HERA.SALON.SALE.LINE.SERVICE.V1"},
			{LineType: "product", Quantity: 2, UnitAmount: 35, LineAmount: 70, SmartCode: "HERA.SALON.SALE.LINE.PRODUCT.V1"},
		},
	}
	require.NoError(t, st.Transactions().CreateTransaction(ctx, txn))

	lines, err := st.Transactions().ListLines(ctx, orgID, txn.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, 1, lines[0].LineNumber)
	require.Equal(t, 2, lines[1].LineNumber)
	require.Equal(t, "service", lines[0].LineType)

	t.Run("hard delete removes lines", func(t *testing.T) {
		require.NoError(t, st.Transactions().HardDeleteTransaction(ctx, orgID, txn.ID))
		_, err := st.Transactions().ListLines(ctx, orgID, txn.ID)
		require.ErrorIs(t, err, store.ErrTransactionNotFound)
	})
}

func TestIntegration_RelationshipUpsertAndCycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID := setupOrganization(t, ctx, st)

	newEntity := func(name string) uuid.UUID {
		e := &models.Entity{
			OrganizationID: orgID,
			EntityType:     "department",
			EntityName:     name,
			SmartCode:      "HERA.CORE.ORG.DEPARTMENT.STANDARD.V1",
		}
		require.NoError(t, st.Entities().CreateEntity(ctx, e))
		return e.ID
	}

	a := newEntity("A")
	b := newEntity("B")
	c := newEntity("C")

	link := func(from, to uuid.UUID) error {
		return st.Relationships().UpsertRelationship(ctx, &models.Relationship{
			OrganizationID:   orgID,
			FromID:           from,
			ToID:             to,
			RelationshipType: "parent_of",
			SmartCode:        "HERA.CORE.RELATIONSHIP.LINK.STANDARD.V1",
			IsActive:         true,
		})
	}

	require.NoError(t, link(a, b))
	require.NoError(t, link(b, c))

	t.Run("cycle rejected", func(t *testing.T) {
		require.ErrorIs(t, link(c, a), store.ErrRelationshipCycle)
	})

	t.Run("upsert reuses the natural key row", func(t *testing.T) {
		require.NoError(t, link(a, b))
		rels, err := st.Relationships().ListRelationships(ctx, orgID, store.RelationshipFilter{
			FromID:           a,
			RelationshipType: "parent_of",
		})
		require.NoError(t, err)
		require.Len(t, rels, 1)
	})
}

func TestIntegration_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID := setupOrganization(t, ctx, st)

	boom := errors.New("boom")
	var entityID uuid.UUID
	err := st.WithinTx(ctx, func(tx store.Stores) error {
		e := &models.Entity{
			OrganizationID: orgID,
			EntityType:     "customer",
			EntityName:     "Ghost",
			SmartCode:      "HERA.SALON.CRM.CUSTOMER.PROFILE.V1",
		}
		if err := tx.Entities().CreateEntity(ctx, e); err != nil {
			return err
		}
		entityID = e.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Entities().GetEntity(ctx, orgID, entityID)
	require.ErrorIs(t, err, store.ErrEntityNotFound)
}

func TestIntegration_LockSubjectConflict(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgID := setupOrganization(t, ctx, st)

	e := &models.Entity{
		OrganizationID: orgID,
		EntityType:     "appointment",
		EntityName:     "Trim",
		SmartCode:      "HERA.SALON.APPOINTMENT.BOOKING.STANDARD.V1",
	}
	require.NoError(t, st.Entities().CreateEntity(ctx, e))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- st.WithinTx(ctx, func(tx store.Stores) error {
			if err := tx.Relationships().LockSubject(ctx, orgID, e.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked
	err := st.WithinTx(ctx, func(tx store.Stores) error {
		return tx.Relationships().LockSubject(ctx, orgID, e.ID)
	})
	require.ErrorIs(t, err, store.ErrConcurrentTransition)

	close(release)
	require.NoError(t, <-done)
}
