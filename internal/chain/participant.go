package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// The agent never calls these methods itself; they are encoded into the
// machine-execution payloads so wallet-agents can act on an opportunity
// without an ABI of their own.
const participantABI = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"fundPremium","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"joinPool","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]}
]`

var parsedParticipantABI abi.ABI

func init() {
	var err error
	parsedParticipantABI, err = abi.JSON(strings.NewReader(participantABI))
	if err != nil {
		panic("chain: bad participant ABI: " + err.Error())
	}
}

// EncodeApprove returns calldata approving the pool contract to spend the
// stablecoin amount.
func EncodeApprove(spender common.Address, amount *big.Int) (string, error) {
	return encodeParticipant("approve", spender, amount)
}

// EncodeFundPremium returns calldata funding a Legacy pool's premium.
func EncodeFundPremium(poolID uint64) (string, error) {
	return encodeParticipant("fundPremium", new(big.Int).SetUint64(poolID))
}

// EncodeJoinPool returns calldata contributing collateral to a pool.
func EncodeJoinPool(poolID uint64, amount *big.Int) (string, error) {
	return encodeParticipant("joinPool", new(big.Int).SetUint64(poolID), amount)
}

// EncodeWithdraw returns calldata withdrawing a participant's share.
func EncodeWithdraw(poolID uint64) (string, error) {
	return encodeParticipant("withdraw", new(big.Int).SetUint64(poolID))
}

func encodeParticipant(method string, args ...interface{}) (string, error) {
	data, err := parsedParticipantABI.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", method, err)
	}
	return hexutil.Encode(data), nil
}
