package modbus

import (
	"encoding/binary"
	"fmt"
)

// Function codes used by the service.
const (
	FuncReadCoils            = 0x01
	FuncReadHoldingRegisters = 0x03
	FuncWriteSingleCoil      = 0x05
	FuncWriteSingleRegister  = 0x06
)

// exceptionBit marks an exception response's function code.
const exceptionBit = 0x80

// mbapHeaderLen is the fixed MBAP header size: transaction id (2),
// protocol id (2), length (2), unit id (1).
const mbapHeaderLen = 7

// maxPDULen bounds the PDU per the Modbus/TCP ADU limit of 260 bytes.
const maxPDULen = 253

// Frame is one Modbus/TCP ADU: the MBAP header fields plus the PDU
// (function code and data).
type Frame struct {
	TransactionID uint16
	UnitID        uint8
	PDU           []byte
}

// Function returns the PDU's function code, with the exception bit
// cleared.
func (f Frame) Function() uint8 {
	if len(f.PDU) == 0 {
		return 0
	}
	return f.PDU[0] &^ exceptionBit
}

// IsException reports whether the frame is an exception response.
func (f Frame) IsException() bool {
	return len(f.PDU) > 0 && f.PDU[0]&exceptionBit != 0
}

// ExceptionError converts an exception response into an error.
// Non-exception frames return nil.
func (f Frame) ExceptionError() error {
	if !f.IsException() {
		return nil
	}
	code := uint8(0)
	if len(f.PDU) > 1 {
		code = f.PDU[1]
	}
	return fmt.Errorf("modbus exception: function 0x%02x: %s", f.Function(), exceptionName(code))
}

func exceptionName(code uint8) string {
	switch code {
	case 0x01:
		return "illegal function"
	case 0x02:
		return "illegal data address"
	case 0x03:
		return "illegal data value"
	case 0x04:
		return "server device failure"
	case 0x05:
		return "acknowledge"
	case 0x06:
		return "server device busy"
	case 0x0A:
		return "gateway path unavailable"
	case 0x0B:
		return "gateway target failed to respond"
	}
	return fmt.Sprintf("exception code 0x%02x", code)
}

// Encode serializes the frame into wire bytes. The MBAP protocol id is
// always zero for Modbus/TCP; the length field covers unit id plus PDU.
func (f Frame) Encode() ([]byte, error) {
	if len(f.PDU) == 0 {
		return nil, fmt.Errorf("modbus: empty PDU")
	}
	if len(f.PDU) > maxPDULen {
		return nil, fmt.Errorf("modbus: PDU too long: %d bytes", len(f.PDU))
	}

	buf := make([]byte, mbapHeaderLen+len(f.PDU))
	binary.BigEndian.PutUint16(buf[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], uint16(1+len(f.PDU)))
	buf[6] = f.UnitID
	copy(buf[mbapHeaderLen:], f.PDU)
	return buf, nil
}

// DecodeHeader parses an MBAP header and returns the frame shell plus
// the PDU length still to be read from the wire.
func DecodeHeader(header []byte) (Frame, int, error) {
	if len(header) != mbapHeaderLen {
		return Frame{}, 0, fmt.Errorf("modbus: header must be %d bytes, got %d", mbapHeaderLen, len(header))
	}
	if proto := binary.BigEndian.Uint16(header[2:4]); proto != 0 {
		return Frame{}, 0, fmt.Errorf("modbus: unexpected protocol id %d", proto)
	}

	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || length > maxPDULen+1 {
		return Frame{}, 0, fmt.Errorf("modbus: invalid length field %d", length)
	}

	f := Frame{
		TransactionID: binary.BigEndian.Uint16(header[0:2]),
		UnitID:        header[6],
	}
	return f, length - 1, nil
}

// ReadHoldingRegistersPDU builds a read-holding-registers request PDU.
func ReadHoldingRegistersPDU(address, quantity uint16) ([]byte, error) {
	if quantity == 0 || quantity > 125 {
		return nil, fmt.Errorf("modbus: register quantity %d out of range 1..125", quantity)
	}
	pdu := make([]byte, 5)
	pdu[0] = FuncReadHoldingRegisters
	binary.BigEndian.PutUint16(pdu[1:3], address)
	binary.BigEndian.PutUint16(pdu[3:5], quantity)
	return pdu, nil
}

// ParseReadRegistersResponse extracts register values from a
// read-holding-registers response PDU.
func ParseReadRegistersResponse(pdu []byte) ([]uint16, error) {
	if len(pdu) < 2 || pdu[0] != FuncReadHoldingRegisters {
		return nil, fmt.Errorf("modbus: not a read registers response")
	}
	byteCount := int(pdu[1])
	if byteCount%2 != 0 || len(pdu) != 2+byteCount {
		return nil, fmt.Errorf("modbus: malformed register payload: byte count %d, pdu %d bytes", byteCount, len(pdu))
	}

	values := make([]uint16, byteCount/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(pdu[2+2*i : 4+2*i])
	}
	return values, nil
}

// WriteSingleRegisterPDU builds a write-single-register request PDU.
func WriteSingleRegisterPDU(address, value uint16) []byte {
	pdu := make([]byte, 5)
	pdu[0] = FuncWriteSingleRegister
	binary.BigEndian.PutUint16(pdu[1:3], address)
	binary.BigEndian.PutUint16(pdu[3:5], value)
	return pdu
}

// ReadCoilsPDU builds a read-coils request PDU.
func ReadCoilsPDU(address, quantity uint16) ([]byte, error) {
	if quantity == 0 || quantity > 2000 {
		return nil, fmt.Errorf("modbus: coil quantity %d out of range 1..2000", quantity)
	}
	pdu := make([]byte, 5)
	pdu[0] = FuncReadCoils
	binary.BigEndian.PutUint16(pdu[1:3], address)
	binary.BigEndian.PutUint16(pdu[3:5], quantity)
	return pdu, nil
}

// ParseReadCoilsResponse extracts coil states from a read-coils
// response PDU. quantity is the coil count originally requested.
func ParseReadCoilsResponse(pdu []byte, quantity int) ([]bool, error) {
	if len(pdu) < 2 || pdu[0] != FuncReadCoils {
		return nil, fmt.Errorf("modbus: not a read coils response")
	}
	byteCount := int(pdu[1])
	if len(pdu) != 2+byteCount || byteCount*8 < quantity {
		return nil, fmt.Errorf("modbus: malformed coil payload")
	}

	coils := make([]bool, quantity)
	for i := range coils {
		coils[i] = pdu[2+i/8]&(1<<(i%8)) != 0
	}
	return coils, nil
}

// WriteSingleCoilPDU builds a write-single-coil request PDU. The wire
// value is 0xFF00 for on, 0x0000 for off.
func WriteSingleCoilPDU(address uint16, on bool) []byte {
	pdu := make([]byte, 5)
	pdu[0] = FuncWriteSingleCoil
	binary.BigEndian.PutUint16(pdu[1:3], address)
	if on {
		binary.BigEndian.PutUint16(pdu[3:5], 0xFF00)
	}
	return pdu
}
