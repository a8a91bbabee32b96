package schema

// BCI exports one row per employee per work day with explicit regular,
// overtime and holiday components.
var BCI = &Schema{
	Name: "BCI",
	Columns: []Column{
		{Field: InvoiceNo, Headers: []string{"Invoice_No"}, Required: true},
		{Field: EmployeeID, Headers: []string{"Employee_No"}, Required: true},
		{Field: EmployeeName, Headers: []string{"Employee_Name"}},
		{Field: WorkDate, Headers: []string{"Work_Date"}, Required: true},
		{Field: LocationCode, Headers: []string{"Location_Number", "Location_No"}},
		{Field: PositionCode, Headers: []string{"Position", "Position_Code"}},
		{Field: BillCategory, Headers: []string{"Bill_Category"}},
		{Field: CustomerNumber, Headers: []string{"Customer_Number"}},
		{Field: JobNumber, Headers: []string{"Job_Number"}},
		{Field: HoursRegular, Headers: []string{"Billed_Regular_Hours"}, Required: true},
		{Field: HoursOvertime, Headers: []string{"Billed_OT_Hours"}},
		{Field: HoursHoliday, Headers: []string{"Billed_Holiday_Hours"}},
		{Field: HoursTotal, Headers: []string{"Billed_Total_Hours"}},
		{Field: RateRegular, Headers: []string{"Regular_Bill_Rate"}},
		{Field: RateOvertime, Headers: []string{"OT_Bill_Rate"}},
		{Field: RateHoliday, Headers: []string{"Holiday_Bill_Rate"}},
		{Field: AmountRegular, Headers: []string{"Billed_Regular_Wages"}},
		{Field: AmountOvertime, Headers: []string{"Billed_OT_Wages"}},
		{Field: AmountHoliday, Headers: []string{"Billed_Holiday_Wages"}},
		{Field: AmountTotal, Headers: []string{"Billed_Total_Wages"}},
	},
}

// AUS exports one hours/rate pair per row; Bill Category says which
// component the hours belong to.
var AUS = &Schema{
	Name: "AUS",
	Columns: []Column{
		{Field: InvoiceNo, Headers: []string{"Invoice Number"}, Required: true},
		{Field: EmployeeID, Headers: []string{"Employee Number"}, Required: true},
		{Field: EmployeeName, Headers: []string{"Employee Name"}},
		{Field: WorkDate, Headers: []string{"Work Date"}, Required: true},
		{Field: Hours, Headers: []string{"Hours"}, Required: true},
		{Field: Rate, Headers: []string{"Rate", "Bill Rate"}, Required: true},
		{Field: AmountTotal, Headers: []string{"Bill Amount"}},
		{Field: BillCategory, Headers: []string{"Bill Category"}},
		{Field: JobNumber, Headers: []string{"Job Number"}},
		{Field: LocationCode, Headers: []string{"Location"}},
		{Field: PositionCode, Headers: []string{"Position", "Position Description"}},
		{Field: CustomerNumber, Headers: []string{"Customer Number"}},
	},
}

// Buildings is the building dimension reference file.
var Buildings = &Schema{
	Name: "building_dimension",
	Columns: []Column{
		{Field: BuildingCode, Headers: []string{"Building Code", "building_code"}, Required: true},
		{Field: EMID, Headers: []string{"EMID"}, Required: true},
		{Field: BusinessUnit, Headers: []string{"Business Unit", "business_unit"}},
		{Field: Region, Headers: []string{"Region", "Service Area"}},
	},
}

// EMIDs is the EMID reference file.
var EMIDs = &Schema{
	Name: "emid_reference",
	Columns: []Column{
		{Field: EMID, Headers: []string{"EMID"}, Required: true},
		{Field: JobCode, Headers: []string{"Job Code", "job_code"}, Required: true},
		{Field: Description, Headers: []string{"Description"}},
	},
}

// Jobs is the AUS job/location lookup file.
var Jobs = &Schema{
	Name: "job_location_lookup",
	Columns: []Column{
		{Field: JobNumber, Headers: []string{"Job Number", "job_number"}, Required: true},
		{Field: BuildingCode, Headers: []string{"Building Code", "building_code", "Tina Building Code"}, Required: true},
		{Field: Location, Headers: []string{"Location", "Location Number"}},
	},
}

// MasterInvoices is the invoice header export, used when invoices are seeded
// from a file rather than the database.
var MasterInvoices = &Schema{
	Name: "invoices",
	Columns: []Column{
		{Field: InvoiceNo, Headers: []string{"Invoice No", "Invoice Number", "invoice_no"}, Required: true},
		{Field: EMID, Headers: []string{"EMID"}},
		{Field: ServiceArea, Headers: []string{"Service Area", "service_area"}},
		{Field: InvoiceDate, Headers: []string{"Invoice Date", "invoice_date"}},
		{Field: InvoiceTotal, Headers: []string{"Invoice Total", "invoice_total"}},
	},
}
