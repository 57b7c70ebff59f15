package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// chain ids are decimal, e.g. 271 for a sender L2 and 260 for a destination L2

type ChainDescriptor struct {
	ID              uint64 `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	RPCURL          string `yaml:"rpc_url" json:"rpcUrl"`
	WSURL           string `yaml:"ws_url" json:"wsUrl,omitempty"`
	PollingInterval int    `yaml:"polling_interval_ms" json:"pollingIntervalMs"` // milliseconds
}

type InteropCall struct {
	DirectCall bool
	To         common.Address
	From       common.Address
	Value      *big.Int
	Data       []byte
}

// InteropBundle is decoded from an InteropBundleSent event,
// every interop transaction emits two: fee bundle first, execution bundle second
type InteropBundle struct {
	DestinationChainId *big.Int
	Calls              []InteropCall
	ExecutionAddress   common.Address
}

type GasFields struct {
	GasLimit               *big.Int
	GasPerPubdataByteLimit *big.Int
	RefundRecipient        common.Address
	Paymaster              common.Address
	PaymasterInput         []byte
}

type InteropTrigger struct {
	DestinationChainId  *big.Int
	Sender              common.Address
	Recipient           common.Address
	FeeBundleHash       common.Hash
	ExecutionBundleHash common.Hash
	GasFields           GasFields
}

type L2Message struct {
	TxNumberInBatch uint16
	Sender          common.Address
	Data            []byte
}

// MessageInclusionProof is evidence that a message was included
// at a specific chain/batch/index
type MessageInclusionProof struct {
	ChainId        *big.Int
	L1BatchNumber  *big.Int
	L2MessageIndex *big.Int
	Message        L2Message
	Proof          []common.Hash
}
