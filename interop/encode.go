package interop

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"interoprelay/types"
)

// EncodeBundle returns the canonical abi.encode(bundle) bytes
func EncodeBundle(bundle *types.InteropBundle) ([]byte, error) {
	if bundle == nil {
		return nil, errors.New("nil bundle")
	}
	return Encode(bundleArgs, *bundle)
}

func EncodeTrigger(trigger *types.InteropTrigger) ([]byte, error) {
	if trigger == nil {
		return nil, errors.New("nil trigger")
	}
	return Encode(triggerArgs, *trigger)
}

func EncodeProof(proof *types.MessageInclusionProof) ([]byte, error) {
	if proof == nil {
		return nil, errors.New("nil proof")
	}
	return Encode(proofArgs, *proof)
}

// EncodeExecuteData is the destination calldata: abi.encode(executionBundle, executionProof)
func EncodeExecuteData(executionBundle []byte, proof *types.MessageInclusionProof) ([]byte, error) {
	if proof == nil {
		return nil, errors.New("nil execution proof")
	}
	return Encode(executeDataArgs, executionBundle, *proof)
}

// EncodeCustomSignature is the destination envelope signature:
// abi.encode(feeBundle, feeProof, triggerSender, refundRecipient, triggerProof)
func EncodeCustomSignature(
	feeBundle []byte,
	feeProof *types.MessageInclusionProof,
	sender common.Address,
	refundRecipient common.Address,
	triggerProof *types.MessageInclusionProof,
) ([]byte, error) {
	if feeProof == nil || triggerProof == nil {
		return nil, errors.New("nil fee or trigger proof")
	}
	return Encode(customSignatureArgs, feeBundle, *feeProof, sender, refundRecipient, *triggerProof)
}

func BundleHash(encoded []byte) common.Hash {
	return crypto.Keccak256Hash(encoded)
}

// NewBundleSentLog packs an InteropBundleSent log as the interop center emits it
func NewBundleSentLog(emitter common.Address, bundle *types.InteropBundle) (*ethtypes.Log, error) {
	encoded, err := EncodeBundle(bundle)
	if err != nil {
		return nil, err
	}
	event := InteropCenterABI.Events[EventBundleSent]
	data, err := event.Inputs.NonIndexed().Pack(crypto.Keccak256Hash(encoded), BundleHash(encoded), *bundle)
	if err != nil {
		return nil, err
	}
	return &ethtypes.Log{
		Address: emitter,
		Topics:  []common.Hash{event.ID},
		Data:    data,
	}, nil
}

func NewTriggerSentLog(emitter common.Address, trigger *types.InteropTrigger) (*ethtypes.Log, error) {
	encoded, err := EncodeTrigger(trigger)
	if err != nil {
		return nil, err
	}
	event := InteropCenterABI.Events[EventTriggerSent]
	data, err := event.Inputs.NonIndexed().Pack(crypto.Keccak256Hash(encoded), crypto.Keccak256Hash(encoded), *trigger)
	if err != nil {
		return nil, err
	}
	return &ethtypes.Log{
		Address: emitter,
		Topics:  []common.Hash{event.ID},
		Data:    data,
	}, nil
}
