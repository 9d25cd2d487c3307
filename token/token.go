// token/token.go
package token

// Meta describes the ledger token a vault holds custody of.
type Meta struct {
	Symbol          string
	Decimals        int
	LedgerPrincipal string
	IndexPrincipal  string
}

// CKBTC is the chain-key bitcoin ledger this service was built against.
// Deployments can override every field through configuration.
var CKBTC = Meta{
	Symbol:          "ckBTC",
	Decimals:        8,
	LedgerPrincipal: "mxzaz-hqaaa-aaaar-qaada-cai",
	IndexPrincipal:  "n5wcd-faaaa-aaaar-qaaea-cai",
}
