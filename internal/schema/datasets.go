package schema

// Built-in datasets. These mirror the production sheet layouts; the
// first column of each is the primary key and the order below is the
// physical column order on the sheet.

// Orders is the transactional order ledger.
func Orders() Dataset {
	return Dataset{
		Name: "Orders",
		Columns: []Column{
			{Key: "order_id", Header: "Order ID", Type: TypeString, Required: true},
			{Key: "tracking_code", Header: "Tracking Code", Type: TypeString},
			{Key: "order_date", Header: "Order Date", Type: TypeDate, Required: true},
			{Key: "customer_name", Header: "Customer Name", Type: TypeString, Required: true},
			{Key: "phone", Header: "Phone", Type: TypeString, Required: true},
			{Key: "address", Header: "Address", Type: TypeText},
			{Key: "city", Header: "City", Type: TypeString},
			{Key: "state", Header: "State", Type: TypeString},
			{Key: "zipcode", Header: "Zipcode", Type: TypeString},
			{Key: "product", Header: "Product", Type: TypeString},
			{Key: "quantity", Header: "Quantity", Type: TypeNumber},
			{Key: "unit_price", Header: "Unit Price", Type: TypeCurrency},
			{Key: "total_amount", Header: "Total Amount", Type: TypeCurrency},
			{Key: "payment_method", Header: "Payment Method", Type: TypeString},
			{Key: "note", Header: "Note", Type: TypeText},
			{Key: "sales_rep", Header: "Sales Rep", Type: TypeString},
			{Key: "marketing_rep", Header: "Marketing Rep", Type: TypeString},
			{Key: "check_result", Header: "Check Result", Type: TypeString},
			{Key: "delivery_status", Header: "Delivery Status", Type: TypeString},
			{Key: "carrier", Header: "Carrier", Type: TypeString},
			{Key: "collection_status", Header: "Collection Status", Type: TypeString},
			{Key: "market", Header: "Market", Type: TypeString},
			{Key: "region", Header: "Region", Type: TypeString},
			{Key: "team", Header: "Team", Type: TypeString},
			{Key: "shift", Header: "Shift", Type: TypeString},
			{Key: "ordered_at", Header: "Ordered At", Type: TypeDatetime},
		},
	}
}

// Employees is the dimension dataset used to enrich reports.
func Employees() Dataset {
	return Dataset{
		Name: "Employees",
		Columns: []Column{
			{Key: "employee_id", Header: "Employee ID", Type: TypeString, Required: true},
			{Key: "full_name", Header: "Full Name", Type: TypeString, Required: true},
			{Key: "role", Header: "Role", Type: TypeString},
			{Key: "email", Header: "Email", Type: TypeString},
			{Key: "team", Header: "Team", Type: TypeString},
			{Key: "branch", Header: "Branch", Type: TypeString},
		},
	}
}

// MarketingSummary is the per-person marketing report base.
func MarketingSummary() Dataset {
	return Dataset{
		Name: "Marketing Summary",
		Columns: []Column{
			{Key: "id", Header: "ID", Type: TypeString, Required: true},
			{Key: "name", Header: "Name", Type: TypeString},
			{Key: "email", Header: "Email", Type: TypeString},
			{Key: "report_date", Header: "Report Date", Type: TypeDate},
			{Key: "shift", Header: "Shift", Type: TypeString},
			{Key: "product", Header: "Product", Type: TypeString},
			{Key: "market", Header: "Market", Type: TypeString},
			{Key: "ad_account", Header: "Ad Account", Type: TypeString},
			{Key: "ad_spend", Header: "Ad Spend", Type: TypeCurrency},
			{Key: "message_count", Header: "Messages", Type: TypeNumber},
			{Key: "order_count", Header: "Orders", Type: TypeNumber},
			{Key: "revenue", Header: "Revenue", Type: TypeCurrency},
			{Key: "team", Header: "Team", Type: TypeString},
			{Key: "employee_id", Header: "Employee ID", Type: TypeString},
		},
	}
}

// SalesSummary is the per-person sales report base.
func SalesSummary() Dataset {
	return Dataset{
		Name: "Sales Summary",
		Columns: []Column{
			{Key: "id", Header: "ID", Type: TypeString, Required: true},
			{Key: "name", Header: "Name", Type: TypeString},
			{Key: "email", Header: "Email", Type: TypeString},
			{Key: "report_date", Header: "Report Date", Type: TypeDate},
			{Key: "shift", Header: "Shift", Type: TypeString},
			{Key: "product", Header: "Product", Type: TypeString},
			{Key: "market", Header: "Market", Type: TypeString},
			{Key: "message_count", Header: "Messages", Type: TypeNumber},
			{Key: "response_count", Header: "Responses", Type: TypeNumber},
			{Key: "order_count", Header: "Orders", Type: TypeNumber},
			{Key: "revenue", Header: "Revenue", Type: TypeCurrency},
			{Key: "team", Header: "Team", Type: TypeString},
			{Key: "branch", Header: "Branch", Type: TypeString},
			{Key: "employee_id", Header: "Employee ID", Type: TypeString},
		},
	}
}

// Default returns the registry of built-in datasets. It panics on an
// invalid built-in, which can only happen from a programming error here.
func Default() *Registry {
	r, err := NewRegistry(Orders(), Employees(), MarketingSummary(), SalesSummary())
	if err != nil {
		panic(err)
	}
	return r
}
