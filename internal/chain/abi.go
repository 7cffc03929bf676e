package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Both generations share the read surface and the oracle-gated writes. The
// Legacy contract splits creation and premium funding; Current collapses
// them into createAndFund and drops getRequiredPremium.

const legacyABI = `[
	{"type":"function","name":"createPool","stateMutability":"nonpayable","inputs":[{"name":"description","type":"string"},{"name":"evidenceURL","type":"string"},{"name":"coverageAmount","type":"uint256"},{"name":"premiumAmount","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"poolId","type":"uint256"}]},
	{"type":"function","name":"getRequiredPremium","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"resolvePool","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"claimApproved","type":"bool"}],"outputs":[]},
	{"type":"function","name":"cancelAndRefund","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"emergencyResolve","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getPool","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"insured","type":"address"},{"name":"description","type":"string"},{"name":"evidenceURL","type":"string"},{"name":"coverageAmount","type":"uint256"},{"name":"premiumAmount","type":"uint256"},{"name":"totalCollateral","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"status","type":"uint8"},{"name":"claimApproved","type":"bool"}]},
	{"type":"function","name":"getPoolAccounting","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"premiumPaid","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"payouts","type":"uint256"},{"name":"feesAccrued","type":"uint256"}]},
	{"type":"function","name":"getPoolParticipants","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"nextPoolId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"oracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"PoolCreated","inputs":[{"name":"poolId","type":"uint256","indexed":true},{"name":"insured","type":"address","indexed":true},{"name":"coverageAmount","type":"uint256","indexed":false},{"name":"deadline","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"PremiumFunded","inputs":[{"name":"poolId","type":"uint256","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"AgentJoined","inputs":[{"name":"poolId","type":"uint256","indexed":true},{"name":"agent","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"PoolActivated","inputs":[{"name":"poolId","type":"uint256","indexed":true}],"anonymous":false},
	{"type":"event","name":"PoolResolved","inputs":[{"name":"poolId","type":"uint256","indexed":true},{"name":"claimApproved","type":"bool","indexed":false}],"anonymous":false},
	{"type":"event","name":"PoolCancelled","inputs":[{"name":"poolId","type":"uint256","indexed":true}],"anonymous":false}
]`

const currentABI = `[
	{"type":"function","name":"createAndFund","stateMutability":"nonpayable","inputs":[{"name":"description","type":"string"},{"name":"evidenceURL","type":"string"},{"name":"coverageAmount","type":"uint256"},{"name":"premiumAmount","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"poolId","type":"uint256"}]},
	{"type":"function","name":"resolvePool","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"claimApproved","type":"bool"}],"outputs":[]},
	{"type":"function","name":"cancelAndRefund","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"emergencyResolve","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getPool","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"insured","type":"address"},{"name":"description","type":"string"},{"name":"evidenceURL","type":"string"},{"name":"coverageAmount","type":"uint256"},{"name":"premiumAmount","type":"uint256"},{"name":"totalCollateral","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"status","type":"uint8"},{"name":"claimApproved","type":"bool"}]},
	{"type":"function","name":"getPoolAccounting","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"premiumPaid","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"payouts","type":"uint256"},{"name":"feesAccrued","type":"uint256"}]},
	{"type":"function","name":"getPoolParticipants","stateMutability":"view","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"nextPoolId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"oracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"PoolCreated","inputs":[{"name":"poolId","type":"uint256","indexed":true},{"name":"insured","type":"address","indexed":true},{"name":"coverageAmount","type":"uint256","indexed":false},{"name":"deadline","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"AgentJoined","inputs":[{"name":"poolId","type":"uint256","indexed":true},{"name":"agent","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"PoolActivated","inputs":[{"name":"poolId","type":"uint256","indexed":true}],"anonymous":false},
	{"type":"event","name":"PoolResolved","inputs":[{"name":"poolId","type":"uint256","indexed":true},{"name":"claimApproved","type":"bool","indexed":false}],"anonymous":false},
	{"type":"event","name":"PoolCancelled","inputs":[{"name":"poolId","type":"uint256","indexed":true}],"anonymous":false}
]`

var (
	parsedLegacyABI  abi.ABI
	parsedCurrentABI abi.ABI
)

func init() {
	var err error
	parsedLegacyABI, err = abi.JSON(strings.NewReader(legacyABI))
	if err != nil {
		panic("chain: bad legacy ABI: " + err.Error())
	}
	parsedCurrentABI, err = abi.JSON(strings.NewReader(currentABI))
	if err != nil {
		panic("chain: bad current ABI: " + err.Error())
	}
}

func contractABI(v Variant) abi.ABI {
	if v == VariantLegacy {
		return parsedLegacyABI
	}
	return parsedCurrentABI
}

// createMethod is the creation entrypoint per generation. Legacy leaves the
// pool PENDING until the premium lands in a second transaction; Current
// funds the premium atomically and opens the pool immediately.
func createMethod(v Variant) string {
	if v == VariantLegacy {
		return "createPool"
	}
	return "createAndFund"
}
