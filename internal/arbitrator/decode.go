package arbitrator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"disputeSync/internal/model"
)

// EventID returns topic0 of the named arbitrator event.
func (b *Binding) EventID(name string) (common.Hash, error) {
	event, ok := b.abi.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("unsupported event name: %s", name)
	}
	return event.ID, nil
}

// DecodeEvent converts a raw log into an EventRecord.
func (b *Binding) DecodeEvent(log types.Log) (model.EventRecord, error) {
	if len(log.Topics) == 0 {
		return model.EventRecord{}, fmt.Errorf("missing topics")
	}
	event, err := b.abi.EventByID(log.Topics[0])
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return model.EventRecord{}, fmt.Errorf("%s: expected %d indexed topics, got %d", event.Name, len(indexed), len(log.Topics)-1)
	}

	args := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return model.EventRecord{}, fmt.Errorf("%s: parse topics: %w", event.Name, err)
	}
	if err := event.Inputs.UnpackIntoMap(args, log.Data); err != nil {
		return model.EventRecord{}, fmt.Errorf("%s: unpack data: %w", event.Name, err)
	}
	for name, value := range args {
		args[name] = normalizeArg(value)
	}

	return model.EventRecord{
		Name:        event.Name,
		Address:     log.Address.Hex(),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Args:        args,
	}, nil
}

func normalizeArg(value interface{}) interface{} {
	switch v := value.(type) {
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case uint8:
		return new(big.Int).SetUint64(uint64(v))
	case uint16:
		return new(big.Int).SetUint64(uint64(v))
	case uint32:
		return new(big.Int).SetUint64(uint64(v))
	case uint64:
		return new(big.Int).SetUint64(v)
	default:
		return value
	}
}
