package model

// Payee is a budget payee as returned by the YNAB API. Only the fields the
// rename tool needs are kept.
type Payee struct {
	ID   string // server-assigned, immutable
	Name string
}

// RenameOp pairs a matched payee with the name it will be renamed to.
type RenameOp struct {
	Payee   Payee
	NewName string
}
