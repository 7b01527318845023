package state

import (
	"sort"

	"github.com/corexec/corexec/erigon-lib/common"
)

// ComputeStateRoot is the integration point a real Merkle Patricia Trie
// would occupy (out of scope per non-goals). It hashes the post-block
// encoding of every address touched during the block, sorted by address,
// so the result changes deterministically whenever any touched account's
// stored form changes and stays stable otherwise. It is not interoperable
// with mainnet state roots.
func ComputeStateRoot(reader StateReader, touched []common.Address) (common.Hash, error) {
	addrs := make([]common.Address, len(touched))
	copy(addrs, touched)
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	parts := make([][]byte, 0, len(addrs)*2)
	for _, addr := range addrs {
		acc, err := reader.ReadAccountData(addr)
		if err != nil {
			return common.Hash{}, err
		}
		parts = append(parts, addr.Bytes())
		if acc == nil {
			parts = append(parts, []byte{0})
			continue
		}
		parts = append(parts, acc.EncodeForStorage())
	}
	return common.Keccak256Hash(parts...), nil
}
