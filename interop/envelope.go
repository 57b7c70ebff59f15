package interop

import (
	"bytes"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// EIP712TxType is the destination chain's custom transaction envelope (0x71)
const EIP712TxType = 0x71

// DefaultGasPerPubdata is used when the trigger leaves the limit at zero
var DefaultGasPerPubdata = big.NewInt(50000)

type PaymasterParams struct {
	Paymaster      common.Address
	PaymasterInput []byte
}

// EIP712Meta carries the fields only the custom envelope knows about
type EIP712Meta struct {
	GasPerPubdata   *big.Int
	FactoryDeps     [][]byte
	CustomSignature []byte
	PaymasterParams PaymasterParams
}

type EIP712Transaction struct {
	ChainID              *big.Int
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             *big.Int
	To                   common.Address
	From                 common.Address
	Value                *big.Int
	Data                 []byte
	Meta                 EIP712Meta
}

// rlp field order of the 0x71 envelope, unsigned: the v/r/s slots hold
// chainId and two empty strings, the account is authorized by CustomSignature
type eip712RLP struct {
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             *big.Int
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	V                    *big.Int
	R                    []byte
	S                    []byte
	ChainID              *big.Int
	From                 common.Address
	GasPerPubdata        *big.Int
	FactoryDeps          [][]byte
	CustomSignature      []byte
	PaymasterParams      PaymasterParams
}

func (tx *EIP712Transaction) Validate() error {
	switch {
	case tx.ChainID == nil || tx.ChainID.Sign() <= 0:
		return errors.New("envelope: chain id is required")
	case tx.GasLimit == nil || tx.GasLimit.Sign() <= 0:
		return errors.New("envelope: gas limit is required")
	case tx.MaxFeePerGas == nil || tx.MaxPriorityFeePerGas == nil:
		return errors.New("envelope: fee fields are required")
	case tx.From == (common.Address{}):
		return errors.New("envelope: from is required")
	case tx.To == (common.Address{}):
		return errors.New("envelope: to is required")
	case len(tx.Meta.CustomSignature) == 0:
		return errors.New("envelope: custom signature is required")
	case tx.Meta.GasPerPubdata == nil || tx.Meta.GasPerPubdata.Sign() <= 0:
		return errors.New("envelope: gas per pubdata is required")
	}
	return nil
}

// MarshalBinary serializes to 0x71 || rlp(fields)
func (tx *EIP712Transaction) MarshalBinary() ([]byte, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	factoryDeps := tx.Meta.FactoryDeps
	if factoryDeps == nil {
		factoryDeps = [][]byte{}
	}

	var buf bytes.Buffer
	buf.WriteByte(EIP712TxType)
	err := rlp.Encode(&buf, &eip712RLP{
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: tx.MaxPriorityFeePerGas,
		MaxFeePerGas:         tx.MaxFeePerGas,
		GasLimit:             tx.GasLimit,
		To:                   tx.To,
		Value:                value,
		Data:                 tx.Data,
		V:                    tx.ChainID,
		R:                    []byte{},
		S:                    []byte{},
		ChainID:              tx.ChainID,
		From:                 tx.From,
		GasPerPubdata:        tx.Meta.GasPerPubdata,
		FactoryDeps:          factoryDeps,
		CustomSignature:      tx.Meta.CustomSignature,
		PaymasterParams:      tx.Meta.PaymasterParams,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses a 0x71 envelope produced by MarshalBinary
func (tx *EIP712Transaction) UnmarshalBinary(b []byte) error {
	if len(b) == 0 || b[0] != EIP712TxType {
		return errors.New("envelope: not a 0x71 transaction")
	}
	var dec eip712RLP
	if err := rlp.DecodeBytes(b[1:], &dec); err != nil {
		return err
	}
	*tx = EIP712Transaction{
		ChainID:              dec.ChainID,
		Nonce:                dec.Nonce,
		MaxPriorityFeePerGas: dec.MaxPriorityFeePerGas,
		MaxFeePerGas:         dec.MaxFeePerGas,
		GasLimit:             dec.GasLimit,
		To:                   dec.To,
		From:                 dec.From,
		Value:                dec.Value,
		Data:                 dec.Data,
		Meta: EIP712Meta{
			GasPerPubdata:   dec.GasPerPubdata,
			FactoryDeps:     dec.FactoryDeps,
			CustomSignature: dec.CustomSignature,
			PaymasterParams: dec.PaymasterParams,
		},
	}
	return nil
}
