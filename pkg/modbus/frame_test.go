package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/pkg/protocol"
)

func TestFrame_EncodeDecode(t *testing.T) {
	pdu, err := ReadHoldingRegistersPDU(19, 2)
	require.NoError(t, err)

	f := Frame{TransactionID: 0x1234, UnitID: 7, PDU: pdu}
	wire, err := f.Encode()
	require.NoError(t, err)

	// MBAP: txn, protocol id 0, length = unit + pdu, unit.
	assert.Equal(t, []byte{0x12, 0x34, 0x00, 0x00, 0x00, 0x06, 0x07}, wire[:7])
	assert.Equal(t, pdu, wire[7:])

	decoded, pduLen, err := DecodeHeader(wire[:7])
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), decoded.TransactionID)
	assert.Equal(t, uint8(7), decoded.UnitID)
	assert.Equal(t, len(pdu), pduLen)
}

func TestFrame_EncodeRejectsBadPDU(t *testing.T) {
	_, err := Frame{}.Encode()
	assert.Error(t, err)

	_, err = Frame{PDU: make([]byte, maxPDULen+1)}.Encode()
	assert.Error(t, err)
}

func TestDecodeHeader_Validation(t *testing.T) {
	_, _, err := DecodeHeader([]byte{1, 2, 3})
	assert.Error(t, err, "short header")

	// Non-zero protocol id.
	_, _, err = DecodeHeader([]byte{0, 1, 0, 1, 0, 6, 1})
	assert.Error(t, err)

	// Length below the unit+function minimum.
	_, _, err = DecodeHeader([]byte{0, 1, 0, 0, 0, 1, 1})
	assert.Error(t, err)
}

func TestFrame_Exception(t *testing.T) {
	f := Frame{PDU: []byte{FuncReadHoldingRegisters | exceptionBit, 0x02}}

	assert.True(t, f.IsException())
	assert.Equal(t, uint8(FuncReadHoldingRegisters), f.Function())

	err := f.ExceptionError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal data address")

	ok := Frame{PDU: []byte{FuncReadHoldingRegisters, 0x02, 0x00, 0x2A}}
	assert.False(t, ok.IsException())
	assert.NoError(t, ok.ExceptionError())
}

func TestReadHoldingRegisters_RoundTrip(t *testing.T) {
	_, err := ReadHoldingRegistersPDU(0, 0)
	assert.Error(t, err)
	_, err = ReadHoldingRegistersPDU(0, 126)
	assert.Error(t, err)

	resp := []byte{FuncReadHoldingRegisters, 0x04, 0x00, 0x2A, 0x01, 0x00}
	values, err := ParseReadRegistersResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, []uint16{42, 256}, values)

	_, err = ParseReadRegistersResponse([]byte{FuncReadHoldingRegisters, 0x03, 0x00, 0x2A, 0x01})
	assert.Error(t, err, "odd byte count")
}

func TestReadCoils_RoundTrip(t *testing.T) {
	pdu, err := ReadCoilsPDU(0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint8(FuncReadCoils), pdu[0])

	// Bit 0 and bit 9 set.
	resp := []byte{FuncReadCoils, 0x02, 0x01, 0x02}
	coils, err := ParseReadCoilsResponse(resp, 10)
	require.NoError(t, err)
	require.Len(t, coils, 10)
	assert.True(t, coils[0])
	assert.True(t, coils[9])
	assert.False(t, coils[1])
}

func TestWritePDUs(t *testing.T) {
	pdu := WriteSingleRegisterPDU(19, 42)
	assert.Equal(t, []byte{FuncWriteSingleRegister, 0x00, 0x13, 0x00, 0x2A}, pdu)

	on := WriteSingleCoilPDU(3, true)
	assert.Equal(t, []byte{FuncWriteSingleCoil, 0x00, 0x03, 0xFF, 0x00}, on)

	off := WriteSingleCoilPDU(3, false)
	assert.Equal(t, []byte{FuncWriteSingleCoil, 0x00, 0x03, 0x00, 0x00}, off)
}

func TestParseAddress(t *testing.T) {
	offset, coil, err := parseAddress(spec("19", "integer"))
	require.NoError(t, err)
	assert.Equal(t, uint16(19), offset)
	assert.False(t, coil)

	// Conventional data-table reference for holding register 19.
	offset, _, err = parseAddress(spec("40020", "integer"))
	require.NoError(t, err)
	assert.Equal(t, uint16(19), offset)

	_, coil, err = parseAddress(spec("5", "boolean"))
	require.NoError(t, err)
	assert.True(t, coil)

	_, _, err = parseAddress(spec("not-a-number", "integer"))
	assert.Error(t, err)
}

func spec(address, dataType string) protocol.PointSpec {
	return protocol.PointSpec{Address: address, DataType: dataType}
}
