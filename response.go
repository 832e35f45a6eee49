// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// These errors are emitted by [ParseResponse].
var (
	// ErrMalformedResponse indicates that a response cannot be decoded
	// because it is truncated or contains invalid offsets.
	ErrMalformedResponse = errors.New("malformed DNS response")

	// ErrNoUsableRecord indicates a well-formed response without any
	// A or CNAME record in the answer section.
	ErrNoUsableRecord = errors.New("no usable record")
)

// rcodeNames maps the RCODE values defined by RFC 1035 to their names.
var rcodeNames = map[uint16]string{
	0: "NOERROR",
	1: "FORMERR",
	2: "SERVFAIL",
	3: "NXDOMAIN",
	4: "NOTIMP",
	5: "REFUSED",
}

// rcodeString returns the name of rcode or its numeric value.
func rcodeString(rcode uint16) string {
	if name, ok := rcodeNames[rcode]; ok {
		return name
	}
	return fmt.Sprintf("RCODE%d", rcode)
}

// Header is the fixed header of a DNS message.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Response reports whether the QR bit is set.
func (h Header) Response() bool {
	return h.Flags&flagQR != 0
}

// Rcode returns the response code.
func (h Header) Rcode() uint16 {
	return h.Flags & rcodeMask
}

// minRecordSize is the size of a record with a root owner name and no data.
const minRecordSize = 11

// Record is a view of a resource record inside a response buffer.
type Record struct {
	// Offset is where the record starts, which may be a compression pointer.
	Offset int

	// Name is the decoded owner name.
	Name Name

	// Type is the record type.
	Type uint16

	// Class is the record class.
	Class uint16

	// TTL is the time to live, which we decode but never use.
	TTL uint32

	// DataOffset is where the record data starts.
	DataOffset int

	// Data is the record data as a subslice of the response buffer.
	Data []byte
}

// Resolution is an interpreted A or CNAME record.
type Resolution struct {
	// Type is either [TypeA] or [TypeCNAME].
	Type uint16

	// Value is the dotted-decimal address or the alias target.
	Value string
}

// Response is a parsed DNS response.
//
// Construct using [ParseResponse].
type Response struct {
	// Raw is the buffer the response was parsed from.
	Raw []byte

	// Header is the message header.
	Header Header

	// Answers contains every record in the answer section.
	Answers []Record

	// Resolved contains the A and CNAME records in message order.
	Resolved []Resolution
}

// ParseResponse parses a raw DNS response.
//
// Only the header, the question section and the answer section are
// walked. A/IN records with four bytes of data and CNAME/IN records are
// interpreted; every other record is skipped using its data length.
//
// Errors wrap [ErrMalformedResponse] when the buffer is truncated or
// contains invalid names, and [ErrNoUsableRecord] when the message is
// well formed but contains no A or CNAME answer.
func ParseResponse(raw []byte) (*Response, error) {
	resp := &Response{Raw: raw}
	cur := newCursor(raw, 0)

	// 1. read the header
	if err := resp.parseHeader(cur); err != nil {
		return nil, err
	}

	// 2. skip the question section
	for idx := 0; idx < int(resp.Header.QDCount); idx++ {
		_, end, err := DecodeName(raw, cur.off)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", idx, err)
		}
		cur.off = end
		if err := cur.skip(4); err != nil {
			return nil, fmt.Errorf("question %d: %w", idx, err)
		}
	}

	// 3. walk the answer section
	// a record takes at least minRecordSize bytes, so a hostile count
	// cannot make us allocate more than the buffer can hold
	resp.Answers = make([]Record, 0, min(int(resp.Header.ANCount), cur.remaining()/minRecordSize))
	for idx := 0; idx < int(resp.Header.ANCount); idx++ {
		rr, err := parseRecord(cur)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %w", idx, err)
		}
		resp.Answers = append(resp.Answers, rr)

		// 4. interpret the records we understand
		res, ok, err := interpretRecord(raw, rr)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %w", idx, err)
		}
		if ok {
			resp.Resolved = append(resp.Resolved, res)
		}
	}

	// 5. make sure we found something usable
	if len(resp.Resolved) <= 0 {
		if rcode := resp.Header.Rcode(); rcode != 0 {
			return nil, fmt.Errorf("%w (%s)", ErrNoUsableRecord, rcodeString(rcode))
		}
		return nil, ErrNoUsableRecord
	}
	return resp, nil
}

// parseHeader reads the fixed header.
func (r *Response) parseHeader(cur *cursor) error {
	fields := []*uint16{
		&r.Header.ID,
		&r.Header.Flags,
		&r.Header.QDCount,
		&r.Header.ANCount,
		&r.Header.NSCount,
		&r.Header.ARCount,
	}
	for _, field := range fields {
		value, err := cur.uint16()
		if err != nil {
			return fmt.Errorf("header: %w", err)
		}
		*field = value
	}
	return nil
}

// parseRecord reads a single resource record and advances cur past it.
func parseRecord(cur *cursor) (Record, error) {
	rr := Record{Offset: cur.off}

	name, end, err := DecodeName(cur.buf, cur.off)
	if err != nil {
		return Record{}, err
	}
	rr.Name = name
	cur.off = end

	if rr.Type, err = cur.uint16(); err != nil {
		return Record{}, err
	}
	if rr.Class, err = cur.uint16(); err != nil {
		return Record{}, err
	}
	if rr.TTL, err = cur.uint32(); err != nil {
		return Record{}, err
	}
	length, err := cur.uint16()
	if err != nil {
		return Record{}, err
	}
	rr.DataOffset = cur.off
	if rr.Data, err = cur.bytes(int(length)); err != nil {
		return Record{}, err
	}
	return rr, nil
}

// interpretRecord converts A/IN and CNAME/IN records into a [Resolution].
//
// CNAME targets are decoded against the whole message since they
// may contain pointers outside of the record data.
func interpretRecord(raw []byte, rr Record) (Resolution, bool, error) {
	if rr.Class != ClassINET {
		return Resolution{}, false, nil
	}
	switch rr.Type {
	case TypeA:
		if len(rr.Data) != 4 {
			return Resolution{}, false, nil
		}
		addr := netip.AddrFrom4([4]byte(rr.Data))
		return Resolution{Type: TypeA, Value: addr.String()}, true, nil

	case TypeCNAME:
		offset := rr.DataOffset
		target, end, err := DecodeName(raw, offset)
		if err != nil {
			return Resolution{}, false, err
		}
		if end > offset+len(rr.Data) {
			return Resolution{}, false, fmt.Errorf("%w: CNAME target overruns record data", ErrMalformedResponse)
		}
		return Resolution{Type: TypeCNAME, Value: target.String()}, true, nil

	default:
		return Resolution{}, false, nil
	}
}

// Addrs returns the A record addresses in message order.
func (r *Response) Addrs() []string {
	return r.filter(TypeA)
}

// CNAMEs returns the CNAME targets in message order.
func (r *Response) CNAMEs() []string {
	return r.filter(TypeCNAME)
}

func (r *Response) filter(qtype uint16) []string {
	var out []string
	for _, res := range r.Resolved {
		if res.Type == qtype {
			out = append(out, res.Value)
		}
	}
	return out
}

// String renders the resolution chain, e.g. "a.example.com -> 192.0.2.1".
//
// CNAME targets are followed by " -> " and addresses are separated by spaces.
func (r *Response) String() string {
	var sb strings.Builder
	for _, res := range r.Resolved {
		switch res.Type {
		case TypeCNAME:
			sb.WriteString(res.Value)
			sb.WriteString(" -> ")
		default:
			sb.WriteString(res.Value)
			sb.WriteString(" ")
		}
	}
	return strings.TrimSpace(sb.String())
}
