package interop

import (
	"context"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"interoprelay/types"
)

// Payload is the re-encoded interop transaction plus one proof per message slot
type Payload struct {
	FeeBundle       []byte
	ExecutionBundle []byte
	Trigger         []byte

	FeeProof       *types.MessageInclusionProof
	ExecutionProof *types.MessageInclusionProof
	TriggerProof   *types.MessageInclusionProof

	TriggerData *types.InteropTrigger
}

// BuildPayload re-encodes bundles and trigger and proves each of them in
// consecutive slots: fee, execution, trigger
func BuildPayload(
	ctx context.Context,
	source ProofSource,
	senderChainID uint64,
	receipt *ethtypes.Receipt,
	tx *Transaction,
) (*Payload, error) {
	feeBundle, err := EncodeBundle(tx.FeeBundle)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode fee bundle"), types.ErrProofConstruction)
	}
	executionBundle, err := EncodeBundle(tx.ExecutionBundle)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode execution bundle"), types.ErrProofConstruction)
	}
	trigger, err := EncodeTrigger(tx.Trigger)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode trigger"), types.ErrProofConstruction)
	}

	p := &Payload{
		FeeBundle:       feeBundle,
		ExecutionBundle: executionBundle,
		Trigger:         trigger,
		TriggerData:     tx.Trigger,
	}

	messages := []struct {
		slot int
		log  *ethtypes.Log
		data []byte
		out  **types.MessageInclusionProof
	}{
		{SlotFeeBundle, tx.FeeBundleLog, feeBundle, &p.FeeProof},
		{SlotExecutionBundle, tx.ExecutionBundleLog, executionBundle, &p.ExecutionProof},
		{SlotTrigger, tx.TriggerLog, trigger, &p.TriggerProof},
	}
	for _, m := range messages {
		var sender common.Address
		if m.log != nil {
			sender = m.log.Address
		}
		proof, err := source.MessageProof(ctx, ProofRequest{
			SenderChainID: senderChainID,
			TxHash:        receipt.TxHash,
			BlockNumber:   blockNumber(receipt),
			TxIndex:       receipt.TransactionIndex,
			Sender:        sender,
			Slot:          m.slot,
			Data:          m.data,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, errors.Mark(errors.Wrapf(err, "proof for slot %d", m.slot), types.ErrProofConstruction)
		}
		*m.out = proof
	}

	return p, nil
}

func blockNumber(receipt *ethtypes.Receipt) uint64 {
	if receipt.BlockNumber == nil {
		return 0
	}
	return receipt.BlockNumber.Uint64()
}

type DestinationParams struct {
	ChainID              uint64
	InteropHandler       common.Address
	TriggerAccount       common.Address
	Nonce                uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// BuildDestinationTransaction assembles the envelope the destination interop handler executes
func BuildDestinationTransaction(p *Payload, dst DestinationParams) (*EIP712Transaction, error) {
	data, err := EncodeExecuteData(p.ExecutionBundle, p.ExecutionProof)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode execute data"), types.ErrProofConstruction)
	}

	gas := p.TriggerData.GasFields
	signature, err := EncodeCustomSignature(p.FeeBundle, p.FeeProof, p.TriggerData.Sender, gas.RefundRecipient, p.TriggerProof)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode custom signature"), types.ErrProofConstruction)
	}

	gasPerPubdata := gas.GasPerPubdataByteLimit
	if gasPerPubdata == nil || gasPerPubdata.Sign() == 0 {
		gasPerPubdata = DefaultGasPerPubdata
	}

	tx := &EIP712Transaction{
		ChainID:              new(big.Int).SetUint64(dst.ChainID),
		Nonce:                dst.Nonce,
		MaxPriorityFeePerGas: dst.MaxPriorityFeePerGas,
		MaxFeePerGas:         dst.MaxFeePerGas,
		GasLimit:             gas.GasLimit,
		To:                   dst.InteropHandler,
		From:                 dst.TriggerAccount,
		Value:                new(big.Int),
		Data:                 data,
		Meta: EIP712Meta{
			GasPerPubdata:   gasPerPubdata,
			CustomSignature: signature,
			PaymasterParams: PaymasterParams{
				Paymaster:      gas.Paymaster,
				PaymasterInput: gas.PaymasterInput,
			},
		},
	}
	if err := tx.Validate(); err != nil {
		return nil, errors.Mark(err, types.ErrProofConstruction)
	}
	return tx, nil
}
