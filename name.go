// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

const (
	// maxLabelLength is the maximum length of a single label.
	maxLabelLength = 63

	// maxNameLength is the maximum wire length of a name including
	// the length octets and the terminating zero octet.
	maxNameLength = 255

	// maxPointerHops bounds compression pointer chasing. A legitimate
	// name never needs more hops than it has labels.
	maxPointerHops = 128

	// pointerMask selects the two top bits marking a compression pointer.
	pointerMask = 0xC0
)

var (
	// ErrInvalidName indicates that a domain name cannot be encoded.
	ErrInvalidName = errors.New("invalid domain name")

	// ErrMalformedName indicates that a name inside a message cannot be
	// decoded. It wraps [ErrMalformedResponse].
	ErrMalformedName = fmt.Errorf("%w: malformed name", ErrMalformedResponse)
)

// Name is a domain name as an ordered sequence of labels.
//
// Construct using [ParseName] or [DecodeName]. The zero value
// is the root name, which cannot be queried.
type Name struct {
	labels []string
}

// ParseName converts user input into a [Name].
//
// The input is IDNA-encoded, a single trailing dot is removed, and then
// the name is split into labels. Empty labels, labels longer than 63
// octets and names longer than 255 octets on the wire are rejected.
func ParseName(s string) (Name, error) {
	// 1. IDNA encode the domain name.
	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q: %w", ErrInvalidName, s, err)
	}

	// 2. accept fully qualified names.
	ascii = strings.TrimSuffix(ascii, ".")
	if ascii == "" {
		return Name{}, fmt.Errorf("%w: empty name", ErrInvalidName)
	}

	// 3. validate each label and the overall length.
	labels := strings.Split(ascii, ".")
	size := 1
	for _, label := range labels {
		if label == "" {
			return Name{}, fmt.Errorf("%w: %q: empty label", ErrInvalidName, s)
		}
		if len(label) > maxLabelLength {
			return Name{}, fmt.Errorf("%w: %q: label longer than %d octets",
				ErrInvalidName, s, maxLabelLength)
		}
		size += 1 + len(label)
	}
	if size > maxNameLength {
		return Name{}, fmt.Errorf("%w: %q: name longer than %d octets",
			ErrInvalidName, s, maxNameLength)
	}
	return Name{labels: labels}, nil
}

// MustParseName is like [ParseName] but panics on error.
func MustParseName(s string) Name {
	name, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return name
}

// Labels returns a copy of the labels.
func (n Name) Labels() []string {
	return slices.Clone(n.labels)
}

// String returns the dotted representation without the trailing
// dot, or "." for the root name.
func (n Name) String() string {
	if len(n.labels) <= 0 {
		return "."
	}
	return strings.Join(n.labels, ".")
}

// AppendWire appends the uncompressed wire encoding of the name to b.
func (n Name) AppendWire(b []byte) []byte {
	for _, label := range n.labels {
		b = append(b, byte(len(label)))
		b = append(b, label...)
	}
	return append(b, 0)
}

// Encode returns the uncompressed wire encoding of the name.
func (n Name) Encode() []byte {
	return n.AppendWire(nil)
}

// DecodeName decodes a possibly compressed name starting at off in buf.
//
// It returns the decoded name and the offset of the first byte after the
// name as stored at off. When the name ends with a compression pointer,
// that offset is just after the two pointer bytes, regardless of where
// the pointer leads.
//
// Errors wrap [ErrMalformedName]. Decoding fails when a label overruns
// the buffer, a pointer targets an offset beyond the buffer, pointers
// are chased more than a fixed number of times, the name is too long,
// or a label is not valid UTF-8.
func DecodeName(buf []byte, off int) (Name, int, error) {
	var (
		labels []string
		size   = 1
		end    = -1
		hops   = 0
	)
	cur := newCursor(buf, off)
	for {
		length, err := cur.uint8()
		if err != nil {
			return Name{}, 0, fmt.Errorf("%w: %w", ErrMalformedName, err)
		}

		switch {
		case length == 0:
			if end < 0 {
				end = cur.off
			}
			return Name{labels: labels}, end, nil

		case length&pointerMask == pointerMask:
			low, err := cur.uint8()
			if err != nil {
				return Name{}, 0, fmt.Errorf("%w: truncated pointer: %w", ErrMalformedName, err)
			}
			if end < 0 {
				end = cur.off
			}
			hops++
			if hops > maxPointerHops {
				return Name{}, 0, fmt.Errorf("%w: more than %d pointers", ErrMalformedName, maxPointerHops)
			}
			target := int(length&^pointerMask)<<8 | int(low)
			if target >= len(buf) {
				return Name{}, 0, fmt.Errorf("%w: pointer to offset %d beyond %d bytes",
					ErrMalformedName, target, len(buf))
			}
			cur = newCursor(buf, target)

		case length&pointerMask != 0:
			return Name{}, 0, fmt.Errorf("%w: reserved label type %#x", ErrMalformedName, length)

		default:
			label, err := cur.bytes(int(length))
			if err != nil {
				return Name{}, 0, fmt.Errorf("%w: label overruns buffer: %w", ErrMalformedName, err)
			}
			if !utf8.Valid(label) {
				return Name{}, 0, fmt.Errorf("%w: label is not valid text", ErrMalformedName)
			}
			size += 1 + len(label)
			if size > maxNameLength {
				return Name{}, 0, fmt.Errorf("%w: name longer than %d octets", ErrMalformedName, maxNameLength)
			}
			labels = append(labels, string(label))
		}
	}
}
