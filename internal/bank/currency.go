package bank

// Currency is a named monetary unit.
type Currency struct {
	Name string `json:"name"`
	Memo string `json:"memo"`
}
