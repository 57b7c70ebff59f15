package interop

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	EventBundleSent  = "InteropBundleSent"
	EventTriggerSent = "InteropTriggerSent"
)

const (
	callComponents = `[` +
		`{"name":"directCall","type":"bool"},` +
		`{"name":"to","type":"address"},` +
		`{"name":"from","type":"address"},` +
		`{"name":"value","type":"uint256"},` +
		`{"name":"data","type":"bytes"}]`

	gasFieldsComponents = `[` +
		`{"name":"gasLimit","type":"uint256"},` +
		`{"name":"gasPerPubdataByteLimit","type":"uint256"},` +
		`{"name":"refundRecipient","type":"address"},` +
		`{"name":"paymaster","type":"address"},` +
		`{"name":"paymasterInput","type":"bytes"}]`

	messageComponents = `[` +
		`{"name":"txNumberInBatch","type":"uint16"},` +
		`{"name":"sender","type":"address"},` +
		`{"name":"data","type":"bytes"}]`
)

var (
	bundleComponents = `[` +
		`{"name":"destinationChainId","type":"uint256"},` +
		`{"name":"calls","type":"tuple[]","components":` + callComponents + `},` +
		`{"name":"executionAddress","type":"address"}]`

	triggerComponents = `[` +
		`{"name":"destinationChainId","type":"uint256"},` +
		`{"name":"sender","type":"address"},` +
		`{"name":"recipient","type":"address"},` +
		`{"name":"feeBundleHash","type":"bytes32"},` +
		`{"name":"executionBundleHash","type":"bytes32"},` +
		`{"name":"gasFields","type":"tuple","components":` + gasFieldsComponents + `}]`

	proofComponents = `[` +
		`{"name":"chainId","type":"uint256"},` +
		`{"name":"l1BatchNumber","type":"uint256"},` +
		`{"name":"l2MessageIndex","type":"uint256"},` +
		`{"name":"message","type":"tuple","components":` + messageComponents + `},` +
		`{"name":"proof","type":"bytes32[]"}]`

	// argument lists used by Encode / Decode
	bundleArgs      = fmt.Sprintf(`[{"type":"tuple","components":%s}]`, bundleComponents)
	triggerArgs     = fmt.Sprintf(`[{"type":"tuple","components":%s}]`, triggerComponents)
	proofArgs       = fmt.Sprintf(`[{"type":"tuple","components":%s}]`, proofComponents)
	executeDataArgs = fmt.Sprintf(`[{"type":"bytes"},{"type":"tuple","components":%s}]`, proofComponents)
	// fee bundle, fee proof, trigger sender, refund recipient, trigger proof
	customSignatureArgs = fmt.Sprintf(
		`[{"type":"bytes"},{"type":"tuple","components":%s},{"type":"address"},{"type":"address"},{"type":"tuple","components":%s}]`,
		proofComponents, proofComponents,
	)

	interopCenterABI = `[` +
		`{"type":"event","name":"` + EventBundleSent + `","anonymous":false,"inputs":[` +
		`{"name":"l2l1MsgHash","type":"bytes32","indexed":false},` +
		`{"name":"interopBundleHash","type":"bytes32","indexed":false},` +
		`{"name":"interopBundle","type":"tuple","indexed":false,"components":` + bundleComponents + `}]},` +
		`{"type":"event","name":"` + EventTriggerSent + `","anonymous":false,"inputs":[` +
		`{"name":"l2l1MsgHash","type":"bytes32","indexed":false},` +
		`{"name":"interopTriggerHash","type":"bytes32","indexed":false},` +
		`{"name":"interopTrigger","type":"tuple","indexed":false,"components":` + triggerComponents + `}]}` +
		`]`
)

// InteropCenterABI holds the source chain events the relay recognizes
var InteropCenterABI = mustParseABI(interopCenterABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("interop: bad abi definition: %v", err))
	}
	return parsed
}

// Encode is the equivalent of abi.encode for a JSON argument list
func Encode(abiStr string, values ...any) ([]byte, error) {
	inDef := fmt.Sprintf(`[{ "name" : "method", "type": "function", "inputs": %s}]`, abiStr)
	inAbi, err := abi.JSON(strings.NewReader(inDef))
	if err != nil {
		return nil, err
	}

	res, err := inAbi.Pack("method", values...)
	if err != nil {
		return nil, err
	}

	return res[4:], nil
}

// Decode is the equivalent of abi.decode for a JSON argument list
func Decode(abiStr string, data []byte) ([]any, error) {
	inDef := fmt.Sprintf(`[{ "name" : "method", "type": "function", "outputs": %s}]`, abiStr)
	inAbi, err := abi.JSON(strings.NewReader(inDef))
	if err != nil {
		return nil, err
	}

	return inAbi.Unpack("method", data)
}
