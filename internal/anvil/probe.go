package anvil

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Probe enriches a running status with live chain information queried from the
// simulator's JSON-RPC endpoint. Probe failures are not fatal: a process that
// was just spawned may not be accepting connections yet, so the plain process
// status is returned unchanged.
func (r *Registry) Probe(ctx context.Context, info StatusInfo) StatusInfo {
	if !info.Running || info.RPCURL == "" {
		return info
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	client, err := ethclient.DialContext(probeCtx, info.RPCURL)
	if err != nil {
		return info
	}
	defer client.Close()

	if chainID, err := client.ChainID(probeCtx); err == nil && chainID != nil {
		info.ChainID = chainID.String()
	}
	if block, err := client.BlockNumber(probeCtx); err == nil {
		info.BlockNumber = block
	}
	return info
}
