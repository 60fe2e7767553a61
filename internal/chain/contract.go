package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// depositContractABI is the deployed HSKDeposit contract interface. The
// method signatures and event schema are the one bit-exact external
// contract of the settlement subsystem.
const depositContractABI = `[
	{
		"name": "getBalance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "user", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "getContractBalance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "deductForUsage",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "recipient", "type": "address"}
		],
		"outputs": []
	},
	{
		"name": "Deposit",
		"type": "event",
		"anonymous": false,
		"inputs": [
			{"name": "user", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	},
	{
		"name": "Withdraw",
		"type": "event",
		"anonymous": false,
		"inputs": [
			{"name": "user", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false}
		]
	},
	{
		"name": "UsageDeducted",
		"type": "event",
		"anonymous": false,
		"inputs": [
			{"name": "user", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false},
			{"name": "recipient", "type": "address", "indexed": true}
		]
	}
]`

func parseDepositABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(depositContractABI))
}
