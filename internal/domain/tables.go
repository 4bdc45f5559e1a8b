package domain

// Table names a synchronized collection. The set is closed: entries naming
// anything else are refused with ErrorKindUnknownTable.
type Table string

const (
	TableProducts    Table = "products"
	TableCategories  Table = "categories"
	TableSales       Table = "sales"
	TableCustomers   Table = "customers"
	TableCredits     Table = "credits"
	TableEmployees   Table = "employees"
	TableShifts      Table = "shifts"
	TableClockEvents Table = "clockEvents"
)

// TableDescriptor declares the sync behavior of one collection. UniqueFields
// are top-level payload keys whose values must be unique within a store.
type TableDescriptor struct {
	Name         Table
	UniqueFields []string
}

var tableDescriptors = []TableDescriptor{
	{Name: TableProducts, UniqueFields: []string{"sku"}},
	{Name: TableCategories, UniqueFields: []string{"name"}},
	{Name: TableSales},
	{Name: TableCustomers, UniqueFields: []string{"email"}},
	{Name: TableCredits},
	{Name: TableEmployees},
	{Name: TableShifts},
	{Name: TableClockEvents},
}

var tableIndex = func() map[Table]*TableDescriptor {
	idx := make(map[Table]*TableDescriptor, len(tableDescriptors))
	for i := range tableDescriptors {
		idx[tableDescriptors[i].Name] = &tableDescriptors[i]
	}
	return idx
}()

// Tables returns the descriptors of every tracked table in declaration order.
func Tables() []TableDescriptor {
	return tableDescriptors
}

// LookupTable resolves a wire-level table name against the closed enumeration.
func LookupTable(name string) (*TableDescriptor, bool) {
	d, ok := tableIndex[Table(name)]
	return d, ok
}
