package model

import "fmt"

// Period is the arbitrator court period.
type Period uint64

const (
	PeriodActivation Period = iota
	PeriodDraw
	PeriodVote
	PeriodAppeal
	PeriodExecution
)

func (p Period) String() string {
	switch p {
	case PeriodActivation:
		return "activation"
	case PeriodDraw:
		return "draw"
	case PeriodVote:
		return "vote"
	case PeriodAppeal:
		return "appeal"
	case PeriodExecution:
		return "execution"
	default:
		return fmt.Sprintf("period(%d)", uint64(p))
	}
}

// DisputeState mirrors the arbitrator dispute state enum.
type DisputeState uint8

const (
	DisputeOpen DisputeState = iota
	DisputeResolving
	DisputeExecutable
	DisputeExecuted
)

// LedgerDispute is a dispute as read from the ledger.
// AppealDraws is indexed by appeal number and only filled for the juror queried.
type LedgerDispute struct {
	ID                  uint64       `json:"disputeId"`
	ArbitratorAddress   string       `json:"arbitratorAddress"`
	Arbitrable          string       `json:"arbitrableAddress"`
	Session             uint64       `json:"session"`
	NumberOfAppeals     uint64       `json:"numberOfAppeals"`
	Choices             uint64       `json:"choices"`
	InitialNumberJurors uint64       `json:"initialNumberJurors"`
	State               DisputeState `json:"state"`
	AppealDraws         [][]uint64   `json:"appealDraws,omitempty"`
}

// CurrentSession is the session of the dispute's latest appeal round.
func (d LedgerDispute) CurrentSession() uint64 {
	return d.Session + d.NumberOfAppeals
}

// DrawsForAppeal returns the draws recorded for appeal.
func (d LedgerDispute) DrawsForAppeal(appeal uint64) ([]uint64, bool) {
	if appeal >= uint64(len(d.AppealDraws)) {
		return nil, false
	}
	return d.AppealDraws[appeal], true
}

// CreationEvent is the ledger log that created a dispute.
type CreationEvent struct {
	DisputeID   uint64 `json:"disputeId"`
	Arbitrable  string `json:"arbitrableAddress"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
}
