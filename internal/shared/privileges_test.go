package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrivilegesIsCaseInsensitive(t *testing.T) {
	set := ParsePrivileges(" PostMiscInvoices, printinvoices ,,")
	require.True(t, set.Has(PermPostMiscInvoices))
	require.True(t, set.Has(PermPrintInvoices))
	require.False(t, set.Has(PermVoidPostedInvoices))
	require.Len(t, set, 2)
}

func TestPrivilegesContextRoundTrip(t *testing.T) {
	ctx := ContextWithPrivileges(context.Background(), NewPrivilegeSet(PermViewInvoices))
	require.True(t, PrivilegesFromContext(ctx).Has(PermViewInvoices))
	require.Nil(t, PrivilegesFromContext(context.Background()))
}
