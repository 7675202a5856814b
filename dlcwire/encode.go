// Package dlcwire implements the binary-serialised, bit-exact wire types
// exchanged between DLC counterparties (Offer/Accept/Sign) and between an
// attestor and its clients (OracleAnnouncement/OracleAttestation), following
// the teacher's lnwire.Message codec shape: every type implements
// Encode(io.Writer) error / Decode(io.Reader) error built out of small
// per-field read/write helpers, rather than a reflection-based marshaler.
package dlcwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// endian is the byte order used for every fixed-width field on the wire.
var endian = binary.BigEndian

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	endian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return endian.Uint16(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	endian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return endian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	endian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return endian.Uint64(b[:]), nil
}

func writeBool(w io.Writer, v bool) error {
	var b [1]byte
	if v {
		b[0] = 1
	}
	_, err := w.Write(b[:])
	return err
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// maxVarFieldLen bounds the length prefix of any variable-size field to
// guard against malformed input driving huge allocations.
const maxVarFieldLen = 1<<16 - 1

func writeVarBytes(w io.Writer, b []byte) error {
	if len(b) > maxVarFieldLen {
		return fmt.Errorf("dlcwire: field of %d bytes exceeds max %d",
			len(b), maxVarFieldLen)
	}
	if err := writeUint16(w, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	l, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error {
	return writeVarBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readFixed(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
