// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import "encoding/binary"

const (
	// DefaultQueryID is the transaction ID used by [NewQuery]. A session
	// never has more than one outstanding query.
	DefaultQueryID = 0x1212

	// headerSize is the size of the fixed DNS header.
	headerSize = 12

	// flagQR marks a message as a response.
	flagQR = 1 << 15

	// flagRD asks the server to recurse.
	flagRD = 1 << 8

	// rcodeMask selects the RCODE bits of the flags.
	rcodeMask = 0x000f
)

// Record types and classes understood by this package.
const (
	TypeA     = 1
	TypeCNAME = 5
	ClassINET = 1
)

// Query is a DNS query for a single name.
//
// Construct using [NewQuery].
type Query struct {
	// ID is the transaction ID.
	//
	// Set by [NewQuery] to [DefaultQueryID].
	ID uint16

	// Flags contains the header flags.
	//
	// Set by [NewQuery] to a standard query with recursion desired.
	Flags uint16

	// Name is the name to query.
	Name Name

	// Type is the query type.
	//
	// Set by [NewQuery] to [TypeA].
	Type uint16

	// Class is the query class.
	//
	// Set by [NewQuery] to [ClassINET].
	Class uint16
}

// NewQuery constructs a new A/IN [*Query] for name.
func NewQuery(name Name) *Query {
	return &Query{
		ID:    DefaultQueryID,
		Flags: flagRD,
		Name:  name,
		Type:  TypeA,
		Class: ClassINET,
	}
}

// Pack serializes the query into its wire format.
func (q *Query) Pack() []byte {
	// 1. header with a single question
	out := make([]byte, headerSize, headerSize+maxNameLength+4)
	binary.BigEndian.PutUint16(out[0:], q.ID)
	binary.BigEndian.PutUint16(out[2:], q.Flags)
	binary.BigEndian.PutUint16(out[4:], 1)

	// 2. question name, type and class
	out = q.Name.AppendWire(out)
	out = binary.BigEndian.AppendUint16(out, q.Type)
	out = binary.BigEndian.AppendUint16(out, q.Class)
	return out
}

// PackQuery parses domain and returns a packed A/IN query for it.
//
// Errors wrap [ErrInvalidName].
func PackQuery(domain string) ([]byte, error) {
	name, err := ParseName(domain)
	if err != nil {
		return nil, err
	}
	return NewQuery(name).Pack(), nil
}
