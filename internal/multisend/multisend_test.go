package multisend

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

func TestPackMatchesHandEncodedLayout(t *testing.T) {
	calls := []model.Call{
		{Operation: model.CallTypeCall, To: "0x0000000000000000000000000000000000000001", Value: "5", Data: "0xa9059cbb"},
		{Operation: model.CallTypeDelegateCall, To: "0x00000000000000000000000000000000000000ff", Value: "0x10", Data: ""},
	}
	got, err := Pack(calls)
	require.NoError(t, err)

	want := "00" +
		"0000000000000000000000000000000000000001" +
		strings.Repeat("0", 63) + "5" +
		strings.Repeat("0", 63) + "4" +
		"a9059cbb" +
		"01" +
		"00000000000000000000000000000000000000ff" +
		strings.Repeat("0", 62) + "10" +
		strings.Repeat("0", 64)
	assert.Equal(t, want, common.Bytes2Hex(got))
}

func TestEncodeWrapsInMultiSendDelegateCall(t *testing.T) {
	multiSend := common.HexToAddress(registry.MultiSendCallOnlyAddress)
	calls := []model.Call{{To: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Value: "0", Data: "0xa9059cbb00"}}

	exe, err := Encode(calls, multiSend)
	require.NoError(t, err)
	assert.Equal(t, model.CallTypeDelegateCall, exe.CallType)
	assert.Equal(t, multiSend.Hex(), exe.To)
	assert.Equal(t, "0", exe.Value)
	require.True(t, strings.HasPrefix(exe.Data, "0x8d80ff0a"), "multiSend selector, got %s", exe.Data[:10])

	raw, err := hexutil.Decode(exe.Data)
	require.NoError(t, err)
	parsed, err := multiSendABI()
	require.NoError(t, err)
	args, err := parsed.Methods["multiSend"].Inputs.Unpack(raw[4:])
	require.NoError(t, err)
	packed, err := Pack(calls)
	require.NoError(t, err)
	assert.Equal(t, packed, args[0].([]byte))
}

func TestPackRejectsBadInput(t *testing.T) {
	cases := map[string][]model.Call{
		"empty":     nil,
		"target":    {{To: "not-an-address", Value: "0"}},
		"value":     {{To: "0x0000000000000000000000000000000000000001", Value: "1.5"}},
		"negative":  {{To: "0x0000000000000000000000000000000000000001", Value: "-1"}},
		"operation": {{Operation: 7, To: "0x0000000000000000000000000000000000000001"}},
		"data":      {{To: "0x0000000000000000000000000000000000000001", Data: "0xzz"}},
	}
	for name, calls := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Pack(calls)
			require.Error(t, err)
			assert.Equal(t, clierr.CodeValidation, clierr.CodeOf(err))
		})
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	assert.Equal(t, 256, v.BitLen())

	_, err = ParseValue("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	require.Error(t, err)

	v, err = ParseValue("")
	require.NoError(t, err)
	assert.Zero(t, v.Sign())
}
