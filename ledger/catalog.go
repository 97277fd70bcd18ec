package ledger

import (
	"sort"

	"github.com/raywall/fast-ledger-service/patch"
)

func str(name string) patch.Field { return patch.Field{Name: name} }
func num(name string) patch.Field { return patch.Field{Name: name, Kind: patch.Number} }

func userKey(name string) *Key { return &Key{Name: name, Kind: patch.String} }

var catalog = map[string]Definition{
	"loans": {
		Name: "loans", Singular: "loan", Table: "Loans",
		HashKey: Key{Name: "loanId"}, SortKey: userKey("userId"),
		ItemPath: "/loan", ListPath: "/loans", HealthPath: "/healthC",
		Schema: patch.MustSchema(
			str("type"), str("counterparty"), str("tdate"), str("ddate"),
			str("fromWallet"), str("toWallet"), str("action"),
			num("amount"), str("currency"), num("fee"), str("note"),
		),
		Ops:       AllOps,
		MustExist: true,
	},
	"settings": {
		Name: "settings", Singular: "setting", Table: "Settings",
		HashKey:  Key{Name: "userId"},
		ItemPath: "/settings", ListPath: "/settings", HealthPath: "/healthC",
		Schema:        patch.MustSchema(str("currency"), str("theme")),
		Ops:           OpList | OpUpdate,
		ListByHash:    true,
		UpdateSubject: "settings",
	},
	"cryptos": {
		Name: "cryptos", Singular: "crypto", Table: "Cryptos",
		HashKey: Key{Name: "cryptoId"}, SortKey: userKey("userId"),
		ItemPath: "/crypto", ListPath: "/cryptos", HealthPath: "/health",
		Schema: patch.MustSchema(
			str("mtype"), str("cryptoType"), str("mainCat"), str("subCat"),
			str("tdate"), str("fromWallet"), str("toWallet"),
			num("amount"), num("price"), str("currency"), num("fee"), str("note"),
		),
		Ops:       AllOps,
		MustExist: true,
	},
	"stocks": {
		Name: "stocks", Singular: "stock", Table: "Stocks",
		HashKey: Key{Name: "stockId"}, SortKey: userKey("userId"),
		ItemPath: "/stock", ListPath: "/stocks", HealthPath: "/healthC",
		Schema: patch.MustSchema(
			str("stockName"), str("tdate"), str("fromWallet"), str("toWallet"),
			str("side"), num("quantity"), num("price"), str("currency"),
			num("fee"), str("note"),
		),
		Ops:       AllOps,
		MustExist: true,
	},
	"transactions": {
		Name: "transactions", Singular: "transaction", Table: "Transactions",
		HashKey: Key{Name: "transId", Kind: patch.Number}, SortKey: userKey("username"),
		ItemPath: "/transaction", ListPath: "/transactions", HealthPath: "/healthT",
		Schema: patch.MustSchema(
			str("type"), str("category"), str("tdate"), str("fromWallet"),
			str("toWallet"), num("amount"), str("currency"), num("fee"), str("note"),
		),
		Ops:          AllOps,
		LegacyUpdate: true,
		MustExist:    true,
	},
	"wallets": {
		Name: "wallets", Singular: "wallet", Table: "Wallets",
		HashKey: Key{Name: "walletId"}, SortKey: userKey("userId"),
		ItemPath: "/wallet", ListPath: "/wallets", HealthPath: "/health",
		Schema: patch.MustSchema(
			str("currency"), str("walletName"), str("walletType"),
			str("accountNumber"), num("balance"), str("note"),
		),
		Ops:       AllOps,
		MustExist: true,
	},
	"assets": {
		Name: "assets", Singular: "asset", Table: "Assets",
		HashKey: Key{Name: "assetId"}, SortKey: userKey("userId"),
		ItemPath: "/asset", ListPath: "/assets", HealthPath: "/health",
		Schema: patch.MustSchema(
			str("name"), str("category"), num("quantity"), num("value"),
			str("currency"), str("note"),
		),
		Ops:       AllOps,
		MustExist: true,
	},
}

// Lookup devolve uma cópia da definição embutida da entidade.
func Lookup(name string) (*Definition, bool) {
	d, ok := catalog[name]
	if !ok {
		return nil, false
	}
	return &d, true
}

// Names lista as entidades do catálogo, em ordem alfabética.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
