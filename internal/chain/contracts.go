package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the read surface the monitor needs. The vault event layout must match the deployed
// contract exactly or topic hashes will not match.
const (
	comptrollerABIJSON = `[
	{"type":"function","name":"getAccountLiquidity","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
	{"type":"function","name":"getAssetsIn","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"markets","stateMutability":"view",
	 "inputs":[{"name":"cTokenAddress","type":"address"}],
	 "outputs":[{"name":"isListed","type":"bool"},{"name":"collateralFactorMantissa","type":"uint256"},{"name":"isComped","type":"bool"}]}
]`

	cTokenABIJSON = `[
	{"type":"function","name":"getAccountSnapshot","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
	{"type":"function","name":"borrowRatePerBlock","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"supplyRatePerBlock","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalBorrows","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCash","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalReserves","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

	vaultABIJSON = `[
	{"type":"function","name":"totalManagedAssets","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"liquidBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"sharePrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"WithdrawalRequested","anonymous":false,"inputs":[
		{"name":"requestId","type":"uint256","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"depositIndex","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"isEarlyWithdrawal","type":"bool","indexed":false}
	]}
]`

	erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`
)

const EVENT_WITHDRAWAL_REQUESTED = "WithdrawalRequested"

// ABIs holds the parsed contract interfaces.
type ABIs struct {
	Comptroller abi.ABI
	CToken      abi.ABI
	Vault       abi.ABI
	ERC20       abi.ABI
}

// ParseABIs parses every embedded ABI definition.
func ParseABIs() (ABIs, error) {
	var (
		out ABIs
		err error
	)
	defs := []struct {
		name string
		json string
		dest *abi.ABI
	}{
		{"comptroller", comptrollerABIJSON, &out.Comptroller},
		{"ctoken", cTokenABIJSON, &out.CToken},
		{"vault", vaultABIJSON, &out.Vault},
		{"erc20", erc20ABIJSON, &out.ERC20},
	}
	for _, d := range defs {
		if *d.dest, err = abi.JSON(strings.NewReader(d.json)); err != nil {
			return ABIs{}, fmt.Errorf("failed to parse %s ABI: %w", d.name, err)
		}
	}
	return out, nil
}
