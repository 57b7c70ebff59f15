package interop

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"interoprelay/types"
)

// Transaction is the interop payload recognized in one source receipt
type Transaction struct {
	FeeBundle       *types.InteropBundle
	ExecutionBundle *types.InteropBundle
	Trigger         *types.InteropTrigger

	FeeBundleLog       *ethtypes.Log
	ExecutionBundleLog *ethtypes.Log
	TriggerLog         *ethtypes.Log
}

// DecodeReceipt requires at least two bundle events (fee first, execution second)
// and one trigger event, anything else is ErrNotInterop
func DecodeReceipt(receipt *ethtypes.Receipt) (*Transaction, error) {
	if receipt == nil {
		return nil, types.ErrNotInterop
	}

	bundleEvent := InteropCenterABI.Events[EventBundleSent]
	triggerEvent := InteropCenterABI.Events[EventTriggerSent]

	var (
		bundles     []*types.InteropBundle
		bundleLogs  []*ethtypes.Log
		trigger     *types.InteropTrigger
		triggerLog  *ethtypes.Log
		decodeError error
	)

	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) == 0 {
			continue
		}
		switch l.Topics[0] {
		case bundleEvent.ID:
			b, err := decodeBundleLog(bundleEvent, l)
			if err != nil {
				decodeError = errors.CombineErrors(decodeError, err)
				continue
			}
			bundles = append(bundles, b)
			bundleLogs = append(bundleLogs, l)
		case triggerEvent.ID:
			if trigger != nil {
				continue
			}
			t, err := decodeTriggerLog(triggerEvent, l)
			if err != nil {
				decodeError = errors.CombineErrors(decodeError, err)
				continue
			}
			trigger = t
			triggerLog = l
		}
	}

	if len(bundles) < 2 || trigger == nil {
		if decodeError != nil {
			return nil, errors.Mark(errors.Wrap(decodeError, "incomplete interop events"), types.ErrNotInterop)
		}
		return nil, types.ErrNotInterop
	}

	return &Transaction{
		FeeBundle:          bundles[0],
		ExecutionBundle:    bundles[1],
		Trigger:            trigger,
		FeeBundleLog:       bundleLogs[0],
		ExecutionBundleLog: bundleLogs[1],
		TriggerLog:         triggerLog,
	}, nil
}

func decodeBundleLog(event abi.Event, l *ethtypes.Log) (*types.InteropBundle, error) {
	values, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s log %d", event.Name, l.Index)
	}
	if len(values) != 3 {
		return nil, errors.Newf("%s: expected 3 values, got %d", event.Name, len(values))
	}
	bundle := new(types.InteropBundle)
	if err := convert(values[2], bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

func decodeTriggerLog(event abi.Event, l *ethtypes.Log) (*types.InteropTrigger, error) {
	values, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s log %d", event.Name, l.Index)
	}
	if len(values) != 3 {
		return nil, errors.Newf("%s: expected 3 values, got %d", event.Name, len(values))
	}
	trigger := new(types.InteropTrigger)
	if err := convert(values[2], trigger); err != nil {
		return nil, err
	}
	return trigger, nil
}

// convert copies an anonymous abi tuple struct into out, abi.ConvertType panics on mismatch
func convert(in any, out any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("abi: cannot convert %T into %T: %v", in, out, r)
		}
	}()
	abi.ConvertType(in, out)
	return nil
}

// DecodeBundle is the inverse of EncodeBundle
func DecodeBundle(data []byte) (*types.InteropBundle, error) {
	values, err := Decode(bundleArgs, data)
	if err != nil {
		return nil, err
	}
	bundle := new(types.InteropBundle)
	if err := convert(values[0], bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

func DecodeTrigger(data []byte) (*types.InteropTrigger, error) {
	values, err := Decode(triggerArgs, data)
	if err != nil {
		return nil, err
	}
	trigger := new(types.InteropTrigger)
	if err := convert(values[0], trigger); err != nil {
		return nil, err
	}
	return trigger, nil
}

// DecodeExecuteData splits destination calldata into the execution bundle and its proof
func DecodeExecuteData(data []byte) (*types.InteropBundle, *types.MessageInclusionProof, error) {
	values, err := Decode(executeDataArgs, data)
	if err != nil {
		return nil, nil, err
	}
	raw, ok := values[0].([]byte)
	if !ok {
		return nil, nil, errors.Newf("unexpected bundle bytes type %T", values[0])
	}
	bundle, err := DecodeBundle(raw)
	if err != nil {
		return nil, nil, err
	}
	proof := new(types.MessageInclusionProof)
	if err := convert(values[1], proof); err != nil {
		return nil, nil, err
	}
	return bundle, proof, nil
}
