package solana

import (
	"net/url"
	"strings"
)

// EndpointLabel extracts a short identifier from an RPC URL for metrics labeling.
// Examples:
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://api.devnet.solana.com" -> "devnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
//   - "http://localhost:8899" -> "localhost"
func EndpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := parsed.Hostname()

	for _, provider := range []string{"helius", "quiknode", "quicknode", "alchemy", "triton", "rpcpool"} {
		if strings.Contains(host, provider) {
			if provider == "quicknode" {
				return "quiknode"
			}
			return provider
		}
	}
	for _, cluster := range []string{"mainnet", "devnet", "testnet"} {
		if strings.Contains(host, cluster) {
			return cluster
		}
	}
	// API keys never appear in the hostname.
	return host
}

// ExplorerTxURL links a transaction on the Solana explorer. An empty cluster
// or "mainnet-beta" links to mainnet.
func ExplorerTxURL(signature, cluster string) string {
	u := "https://explorer.solana.com/tx/" + signature
	if cluster != "" && cluster != "mainnet-beta" {
		u += "?cluster=" + url.QueryEscape(cluster)
	}
	return u
}

// ExplorerAddressURL links an account on the Solana explorer.
func ExplorerAddressURL(address, cluster string) string {
	u := "https://explorer.solana.com/address/" + address
	if cluster != "" && cluster != "mainnet-beta" {
		u += "?cluster=" + url.QueryEscape(cluster)
	}
	return u
}
