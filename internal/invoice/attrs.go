package invoice

import "github.com/odyssey-erp/invoicing/internal/recalc"

// Invoice attributes.
const (
	AttrCustomer          recalc.Attr = "customer"
	AttrCurrency          recalc.Attr = "currency"
	AttrInvoiceDate       recalc.Attr = "invoice_date"
	AttrNumber            recalc.Attr = "number"
	AttrSalesRep          recalc.Attr = "sales_rep"
	AttrCommission        recalc.Attr = "commission"
	AttrTerms             recalc.Attr = "terms"
	AttrTaxZone           recalc.Attr = "tax_zone"
	AttrSaleType          recalc.Attr = "sale_type"
	AttrShipVia           recalc.Attr = "ship_via"
	AttrNotes             recalc.Attr = "notes"
	AttrMiscCharge        recalc.Attr = "misc_charge"
	AttrSubtotal          recalc.Attr = "subtotal"
	AttrTaxTotal          recalc.Attr = "tax_total"
	AttrTotal             recalc.Attr = "total"
	AttrAllocatedCredit   recalc.Attr = "allocated_credit"
	AttrOutstandingCredit recalc.Attr = "outstanding_credit"
	AttrAuthorizedCredit  recalc.Attr = "authorized_credit"
	AttrBalance           recalc.Attr = "balance"
	AttrIsPosted          recalc.Attr = "is_posted"
	AttrIsVoid            recalc.Attr = "is_void"
	AttrIsPrinted         recalc.Attr = "is_printed"
	AttrLineItems         recalc.Attr = "line_items"
	AttrTaxAdjustments    recalc.Attr = "tax_adjustments"
	AttrAllocations       recalc.Attr = "allocations"
	AttrStatus            recalc.Attr = "status"

	AttrBilltoName       recalc.Attr = "billto_name"
	AttrBilltoAddress1   recalc.Attr = "billto_address1"
	AttrBilltoAddress2   recalc.Attr = "billto_address2"
	AttrBilltoAddress3   recalc.Attr = "billto_address3"
	AttrBilltoCity       recalc.Attr = "billto_city"
	AttrBilltoState      recalc.Attr = "billto_state"
	AttrBilltoPostalCode recalc.Attr = "billto_postal_code"
	AttrBilltoCountry    recalc.Attr = "billto_country"
	AttrBilltoPhone      recalc.Attr = "billto_phone"

	// attrLineAmounts signals that a line's extended price or taxes moved.
	attrLineAmounts recalc.Attr = "line_amounts"
)

// Line attributes.
const (
	AttrItem              recalc.Attr = "item"
	AttrItemNumber        recalc.Attr = "item_number"
	AttrItemDescription   recalc.Attr = "item_description"
	AttrSalesCategory     recalc.Attr = "sales_category"
	AttrIsMiscellaneous   recalc.Attr = "is_miscellaneous"
	AttrQuantityUnit      recalc.Attr = "quantity_unit"
	AttrPriceUnit         recalc.Attr = "price_unit"
	AttrQuantityUnitRatio recalc.Attr = "quantity_unit_ratio"
	AttrPriceUnitRatio    recalc.Attr = "price_unit_ratio"
	AttrBilled            recalc.Attr = "billed"
	AttrQuantity          recalc.Attr = "quantity"
	AttrPrice             recalc.Attr = "price"
	AttrCustomerPrice     recalc.Attr = "customer_price"
	AttrExtendedPrice     recalc.Attr = "extended_price"
	AttrTaxType           recalc.Attr = "tax_type"
	AttrTaxes             recalc.Attr = "taxes"
	AttrLineNumber        recalc.Attr = "line_number"
	AttrLineTaxTotal      recalc.Attr = "line_tax_total"
	AttrParent            recalc.Attr = "parent"
	AttrSite              recalc.Attr = "site"
)

var billtoAttrs = []recalc.Attr{
	AttrBilltoName,
	AttrBilltoAddress1,
	AttrBilltoAddress2,
	AttrBilltoAddress3,
	AttrBilltoCity,
	AttrBilltoState,
	AttrBilltoPostalCode,
	AttrBilltoCountry,
	AttrBilltoPhone,
}

var postedAttrs = []recalc.Attr{
	AttrLineItems,
	AttrNumber,
	AttrInvoiceDate,
	AttrTerms,
	AttrSalesRep,
	AttrCommission,
	AttrTaxZone,
	AttrSaleType,
}

var invoiceReadOnlyDefaults = []recalc.Attr{
	AttrIsPosted,
	AttrIsVoid,
	AttrIsPrinted,
	AttrMiscCharge,
	AttrAllocatedCredit,
	AttrAuthorizedCredit,
}

var lineReadOnlyDefaults = []recalc.Attr{
	AttrLineNumber,
	AttrExtendedPrice,
	AttrLineTaxTotal,
}
