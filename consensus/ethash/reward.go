package ethash

import (
	"github.com/corexec/corexec/core/types"
	"github.com/corexec/corexec/erigon-lib/common"
)

// Fork-dependent base block rewards, in wei (spec §A.4.1: 5/3/2 ETH for
// Frontier/Byzantium/Constantinople).
var (
	FrontierBlockReward      = weiFromEther(5)
	ByzantiumBlockReward     = weiFromEther(3)
	ConstantinopleBlockReward = weiFromEther(2)
)

func weiFromEther(n uint64) *common.U256 {
	ether := common.NewU256(1_000_000_000_000_000_000)
	return new(common.U256).Mul(ether, common.NewU256(n))
}

func (e *Ethash) baseReward(blockNumber uint64) *common.U256 {
	switch {
	case e.Fork.ConstantinopleBlock != 0 && blockNumber >= e.Fork.ConstantinopleBlock:
		return ConstantinopleBlockReward.Clone()
	case e.Fork.ByzantiumBlock != 0 && blockNumber >= e.Fork.ByzantiumBlock:
		return ByzantiumBlockReward.Clone()
	default:
		return FrontierBlockReward.Clone()
	}
}

// BlockReward implements spec §A.4.1: base reward plus 1/32 per uncle for
// the miner; uncle rewards themselves are computed by UncleReward and paid
// separately by the caller (the Execution stage), not folded into this
// return value, mirroring the spec's distinct "block_reward" vs. per-uncle
// formula.
func (e *Ethash) BlockReward(header *types.Header, uncles []*types.Header) *common.U256 {
	base := e.baseReward(header.Number)
	reward := base.Clone()
	if len(uncles) > 0 {
		perUncle := new(common.U256).Div(base, common.NewU256(32))
		bonus := new(common.U256).Mul(perUncle, common.NewU256(uint64(len(uncles))))
		reward.Add(reward, bonus)
	}
	return reward
}

// UncleReward implements spec §A.4.1: (8 - (nephew - uncle))/8 * base, zero
// beyond distance 2.
func UncleReward(base *common.U256, nephewNumber, uncleNumber uint64) *common.U256 {
	distance := nephewNumber - uncleNumber
	if distance > 2 {
		return common.NewU256(0)
	}
	numerator := new(common.U256).Sub(common.NewU256(8), common.NewU256(distance))
	result := new(common.U256).Mul(base, numerator)
	result.Div(result, common.NewU256(8))
	return result
}
