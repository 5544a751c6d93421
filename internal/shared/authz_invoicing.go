package shared

// Invoicing privileges as granted by the ERP.
const (
	PermViewInvoices         = "ViewMiscInvoices"
	PermMaintainMiscInvoices = "MaintainMiscInvoices"
	PermPostMiscInvoices     = "PostMiscInvoices"
	PermVoidPostedInvoices   = "VoidPostedInvoices"
	PermPrintInvoices        = "PrintInvoices"
)
