package relay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

const (
	FamilyEIP155 = "eip155"
	FamilySolana = "solana"
)

// Method and event allow-lists per chain family
var (
	eip155Methods = []string{"eth_sendTransaction", "personal_sign", "eth_signTypedData_v4", "wallet_switchEthereumChain"}
	eip155Events  = []string{"accountsChanged", "chainChanged"}
	solanaMethods = []string{"solana_signTransaction", "solana_signMessage"}
)

// Namespace declares the chains, methods and events requested for one family
type Namespace struct {
	Chains   []string `json:"chains"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts,omitempty"`
}

// Namespaces is keyed by chain family
type Namespaces map[string]Namespace

// BuildNamespaces declares required namespaces for exactly the given CAIP-2
// chains ("eip155:1", "solana:<genesis>"). Families without a configured
// chain are not requested.
func BuildNamespaces(chains []string) (Namespaces, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}

	ns := make(Namespaces)
	for _, chain := range chains {
		family, _, err := splitChain(chain)
		if err != nil {
			return nil, err
		}

		n := ns[family]
		switch family {
		case FamilyEIP155:
			n.Methods = eip155Methods
			n.Events = eip155Events
		case FamilySolana:
			n.Methods = solanaMethods
			n.Events = []string{}
		default:
			return nil, fmt.Errorf("unsupported chain family %q", family)
		}
		if !contains(n.Chains, chain) {
			n.Chains = append(n.Chains, chain)
		}
		ns[family] = n
	}

	for family, n := range ns {
		sort.Strings(n.Chains)
		ns[family] = n
	}
	return ns, nil
}

// Account is a parsed CAIP-10 account id
type Account struct {
	Chain   string
	Address string
}

// ParseAccount parses "<family>:<reference>:<address>" and validates the
// address for its family
func ParseAccount(s string) (Account, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Account{}, fmt.Errorf("malformed account %q", s)
	}

	chain := parts[0] + ":" + parts[1]
	switch parts[0] {
	case FamilyEIP155:
		if !common.IsHexAddress(parts[2]) {
			return Account{}, fmt.Errorf("invalid evm account %q", parts[2])
		}
		return Account{Chain: chain, Address: common.HexToAddress(parts[2]).Hex()}, nil
	case FamilySolana:
		pk, err := solana.PublicKeyFromBase58(parts[2])
		if err != nil {
			return Account{}, fmt.Errorf("invalid solana account %q: %w", parts[2], err)
		}
		return Account{Chain: chain, Address: pk.String()}, nil
	default:
		return Account{}, fmt.Errorf("unsupported account family %q", parts[0])
	}
}

// validateApproval checks that an approval covers every required family and
// never grants accounts on chains that were not requested
func validateApproval(required, approved Namespaces) ([]Account, error) {
	if len(approved) == 0 {
		return nil, fmt.Errorf("empty namespace response")
	}

	var accounts []Account
	for family, req := range required {
		got, ok := approved[family]
		if !ok {
			return nil, fmt.Errorf("namespace %s not approved", family)
		}
		if len(got.Accounts) == 0 {
			return nil, fmt.Errorf("namespace %s approved without accounts", family)
		}

		for _, raw := range got.Accounts {
			acc, err := ParseAccount(raw)
			if err != nil {
				return nil, err
			}
			if !contains(req.Chains, acc.Chain) {
				return nil, fmt.Errorf("account %s on unrequested chain %s", acc.Address, acc.Chain)
			}
			accounts = append(accounts, acc)
		}
	}

	return accounts, nil
}

func splitChain(chain string) (string, string, error) {
	family, ref, ok := strings.Cut(chain, ":")
	if !ok || family == "" || ref == "" {
		return "", "", fmt.Errorf("malformed chain id %q", chain)
	}
	return family, ref, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
