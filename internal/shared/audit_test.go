package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLogValidate(t *testing.T) {
	require.ErrorIs(t, AuditLog{Action: AuditInvoicePost}.Validate(), ErrAuditIncomplete)
	require.NoError(t, AuditLog{Action: AuditInvoicePost, Entity: "invoice", EntityID: "60001"}.Validate())
}

func TestNilStoresAreSafe(t *testing.T) {
	var audit *AuditLogger
	require.Error(t, audit.Record(context.Background(), AuditLog{}))

	var store *IdempotencyStore
	require.Error(t, store.Claim(context.Background(), IdempotencyInvoicePost, "60001"))
	require.NoError(t, store.Release(context.Background(), IdempotencyInvoicePost, "60001"))
	require.Equal(t, "invoice.post:60001", IdempotencyKey(IdempotencyInvoicePost, "60001"))
}
