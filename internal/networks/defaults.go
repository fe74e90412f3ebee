package networks

// Defaults returns the built-in networks: the local Hardhat and Ganache chains plus the
// public testnets that carry a Chainlink ETH/USD feed.
func Defaults() *Registry {
	r := NewRegistry()
	for _, d := range defaultNetworks {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

var defaultNetworks = []NetworkDescriptor{
	{
		ChainID:               31337,
		Name:                  "hardhat",
		IsDevelopment:         true,
		ConfirmationsRequired: 1,
		RPCURL:                "http://127.0.0.1:8545",
	},
	{
		ChainID:               1337,
		Name:                  "localhost",
		IsDevelopment:         true,
		ConfirmationsRequired: 1,
		RPCURL:                "http://127.0.0.1:7545",
	},
	{
		ChainID:               4,
		Name:                  "rinkeby",
		ConfirmationsRequired: 6,
		ExplorerAPIURL:        "https://api-rinkeby.etherscan.io/api",
		KnownAddresses: map[string]string{
			"ethUsdPriceFeed": "0x8A753747A1Fa494EC906cE90E9f37563A8AF630e",
		},
	},
	{
		ChainID:               11155111,
		Name:                  "sepolia",
		ConfirmationsRequired: 6,
		ExplorerAPIURL:        "https://api-sepolia.etherscan.io/api",
		KnownAddresses: map[string]string{
			"ethUsdPriceFeed": "0x694AA1769357215DE4FAC081bf1f309aDC325306",
		},
	},
}
