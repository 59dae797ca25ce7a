package arbitrator

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Event names emitted by the arbitrator contract.
const (
	EventDisputeCreation   = "DisputeCreation"
	EventNewPeriod         = "NewPeriod"
	EventAppealPossible    = "AppealPossible"
	EventAppealDecision    = "AppealDecision"
	EventTokenShift        = "TokenShift"
	EventArbitrationReward = "ArbitrationReward"
)

const arbitratorABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "_disputeID", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "_arbitrable", "type": "address"}
    ],
    "name": "DisputeCreation",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint8", "name": "_period", "type": "uint8"},
      {"indexed": true, "internalType": "uint256", "name": "_session", "type": "uint256"}
    ],
    "name": "NewPeriod",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "_disputeID", "type": "uint256"},
      {"indexed": false, "internalType": "bytes", "name": "_extraData", "type": "bytes"}
    ],
    "name": "AppealPossible",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "_disputeID", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "_arbitrable", "type": "address"}
    ],
    "name": "AppealDecision",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "_account", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "_disputeID", "type": "uint256"},
      {"indexed": false, "internalType": "int256", "name": "_amount", "type": "int256"}
    ],
    "name": "TokenShift",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "_account", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "_disputeID", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "_amount", "type": "uint256"}
    ],
    "name": "ArbitrationReward",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "period",
    "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "session",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "name": "disputes",
    "outputs": [
      {"internalType": "address", "name": "arbitrated", "type": "address"},
      {"internalType": "uint256", "name": "session", "type": "uint256"},
      {"internalType": "uint256", "name": "appeals", "type": "uint256"},
      {"internalType": "uint256", "name": "choices", "type": "uint256"},
      {"internalType": "uint256", "name": "initialNumberJurors", "type": "uint256"},
      {"internalType": "uint256", "name": "arbitrationFeePerJuror", "type": "uint256"},
      {"internalType": "uint8", "name": "state", "type": "uint8"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "_disputeID", "type": "uint256"}],
    "name": "amountJurors",
    "outputs": [{"internalType": "uint256", "name": "nbJurors", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_disputeID", "type": "uint256"},
      {"internalType": "address", "name": "_juror", "type": "address"},
      {"internalType": "uint256", "name": "_draw", "type": "uint256"}
    ],
    "name": "isDrawn",
    "outputs": [{"internalType": "bool", "name": "drawn", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	arbitratorABI     abi.ABI
	arbitratorABIOnce sync.Once
	arbitratorABIErr  error
)

// ABI returns the parsed arbitrator ABI.
func ABI() (abi.ABI, error) {
	arbitratorABIOnce.Do(func() {
		arbitratorABI, arbitratorABIErr = abi.JSON(strings.NewReader(arbitratorABIJSON))
	})
	return arbitratorABI, arbitratorABIErr
}
