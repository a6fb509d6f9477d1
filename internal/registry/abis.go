package registry

// ABI fragments used by the chain reader and the batch encoder.
const (
	ERC20MinimalABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	MultiSendABI = `[
		{"name":"multiSend","type":"function","stateMutability":"payable","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}
	]`
)
