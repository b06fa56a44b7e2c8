package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Volcengine speech socket frames: a 4-byte header, an optional sequence or
// event field, a 4-byte payload length, then the payload.

const protocolVersion = 0b0001

type messageType uint8

const (
	fullClientRequest       messageType = 0b0001
	audioOnlyRequest        messageType = 0b0010
	fullServerResponse      messageType = 0b1001
	audioOnlyServerResponse messageType = 0b1011
	errorMessage            messageType = 0b1111
)

type messageFlags uint8

const (
	flagNoSequence       messageFlags = 0b0000
	flagPositiveSequence messageFlags = 0b0001
	flagLastNoSequence   messageFlags = 0b0010
	flagNegativeSequence messageFlags = 0b0011
	flagWithEvent        messageFlags = 0b0100
)

type serialization uint8

const (
	noSerialization   serialization = 0b0000
	jsonSerialization serialization = 0b0001
)

type compression uint8

const (
	noCompression   compression = 0b0000
	gzipCompression compression = 0b0001
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
)

type frameHeader struct {
	kind          messageType
	flags         messageFlags
	serialization serialization
	compression   compression
	size          uint8 // in 4-byte words
}

type frame struct {
	header    frameHeader
	sequence  int32
	event     eventType
	sessionID string
	connectID string
	errorCode uint32
	payload   []byte
}

func (h frameHeader) bytes() []byte {
	return []byte{
		protocolVersion<<4 | 0b0001,
		uint8(h.kind)<<4 | uint8(h.flags),
		uint8(h.serialization)<<4 | uint8(h.compression),
		0x00,
	}
}

func parseHeader(b []byte) (frameHeader, error) {
	if len(b) < 4 {
		return frameHeader{}, fmt.Errorf("header too short: %d bytes", len(b))
	}
	if v := b[0] >> 4; v != protocolVersion {
		return frameHeader{}, fmt.Errorf("unsupported protocol version: %d", v)
	}
	return frameHeader{
		size:          b[0] & 0x0F,
		kind:          messageType(b[1] >> 4),
		flags:         messageFlags(b[1] & 0x0F),
		serialization: serialization(b[2] >> 4),
		compression:   compression(b[2] & 0x0F),
	}, nil
}

func (f *frame) hasSequence() bool {
	switch f.header.flags & 0b0011 {
	case flagPositiveSequence, flagNegativeSequence:
		return true
	}
	return false
}

func (f *frame) isLast() bool {
	switch f.header.flags & 0b0011 {
	case flagLastNoSequence, flagNegativeSequence:
		return true
	}
	return false
}

func (f *frame) hasEvent() bool {
	return f.header.flags&flagWithEvent == flagWithEvent
}

func eventCarriesSessionID(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	}
	return true
}

func eventCarriesConnectID(e eventType) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func appendSized(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// encode serializes f.
func (f *frame) encode() []byte {
	buf := f.header.bytes()
	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.event))
		if eventCarriesSessionID(f.event) {
			buf = appendSized(buf, f.sessionID)
		}
		if eventCarriesConnectID(f.event) {
			buf = appendSized(buf, f.connectID)
		}
	}
	if f.header.kind == errorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.errorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.payload)))
	return append(buf, f.payload...)
}

type frameReader struct {
	r   io.Reader
	err error
}

func (fr *frameReader) uint32(what string) uint32 {
	if fr.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(fr.r, b[:]); err != nil {
		fr.err = fmt.Errorf("read %s: %w", what, err)
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (fr *frameReader) bytes(n uint32, what string) []byte {
	if fr.err != nil || n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(fr.r, b); err != nil {
		fr.err = fmt.Errorf("read %s (%d bytes): %w", what, n, err)
		return nil
	}
	return b
}

// decodeFrame parses one server frame.
func decodeFrame(data []byte) (*frame, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	fr := &frameReader{r: bytes.NewReader(data[4:])}
	// skip header extensions
	if extra := int(h.size)*4 - 4; extra > 0 {
		fr.bytes(uint32(extra), "extended header")
	}

	f := &frame{header: h}
	if f.hasSequence() {
		f.sequence = int32(fr.uint32("sequence"))
	}
	if f.hasEvent() {
		f.event = eventType(int32(fr.uint32("event")))
		if eventCarriesSessionID(f.event) {
			f.sessionID = string(fr.bytes(fr.uint32("session id size"), "session id"))
		}
		if eventCarriesConnectID(f.event) {
			f.connectID = string(fr.bytes(fr.uint32("connect id size"), "connect id"))
		}
	}
	if h.kind == errorMessage {
		f.errorCode = fr.uint32("error code")
	}
	f.payload = fr.bytes(fr.uint32("payload size"), "payload")
	if fr.err != nil {
		return nil, fr.err
	}
	return f, nil
}

func newFullClientRequest(payload []byte, c compression) *frame {
	return &frame{
		header:  frameHeader{kind: fullClientRequest, flags: flagNoSequence, serialization: jsonSerialization, compression: c},
		payload: payload,
	}
}

// newAudioRequest builds an audio frame; the final frame carries a negated
// sequence number.
func newAudioRequest(audio []byte, seq int32, last bool, c compression) *frame {
	flags := flagNoSequence
	switch {
	case last && seq != 0:
		flags, seq = flagNegativeSequence, -seq
	case last:
		flags = flagLastNoSequence
	case seq > 0:
		flags = flagPositiveSequence
	}
	return &frame{
		header:   frameHeader{kind: audioOnlyRequest, flags: flags, serialization: noSerialization, compression: c},
		sequence: seq,
		payload:  audio,
	}
}
