package client

import (
	"strings"

	"deposit-widget/pkg/types"
)

// blockchains maps EVM chain ids to 1Click blockchain names
var blockchains = map[types.ChainID]string{
	1:     "eth",
	10:    "op",
	56:    "bsc",
	100:   "gnosis",
	137:   "pol",
	8453:  "base",
	42161: "arb",
	43114: "avax",
	80094: "bera",
}

// BlockchainName returns the 1Click name of an EVM chain
func BlockchainName(id types.ChainID) (string, bool) {
	name, ok := blockchains[id]
	return name, ok
}

// ChainIDForBlockchain is the inverse of BlockchainName
func ChainIDForBlockchain(name string) (types.ChainID, bool) {
	name = strings.ToLower(name)
	for id, n := range blockchains {
		if n == name {
			return id, true
		}
	}
	return 0, false
}
