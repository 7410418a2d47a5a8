package main

import (
	"errors"
	"fmt"
)

// maxLabelLen is the largest label the encoder accepts. Labels above 63
// bytes are not legal DNS, but a load generator is allowed to send them.
const maxLabelLen = 255

var (
	// ErrEncoding is matched by every name encoding failure.
	ErrEncoding = errors.New("encoding query")

	ErrEmptyLabel      = fmt.Errorf("%w: empty label", ErrEncoding)
	ErrLabelTooLong    = fmt.Errorf("%w: label longer than %d bytes", ErrEncoding, maxLabelLen)
	ErrBufferExhausted = fmt.Errorf("%w: buffer exhausted", ErrEncoding)
)

// encodedNameLen returns the wire size of name, or an error if one of its
// labels is empty or too long. A single trailing dot is accepted, and "."
// alone is the root name.
func encodedNameLen(name string) (int, error) {
	if name == "." {
		return 1, nil
	}
	if len(name) > 1 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}

	size := 1
	start := 0
	for i := 0; i <= len(name); i++ {
		if i < len(name) && name[i] != '.' {
			continue
		}
		label := i - start
		switch {
		case label == 0:
			return 0, ErrEmptyLabel
		case label > maxLabelLen:
			return 0, fmt.Errorf("%w (%d bytes at offset %d)", ErrLabelTooLong, label, start)
		}
		size += 1 + label
		start = i + 1
	}
	return size, nil
}

// EncodeName writes name into dst as a sequence of length-prefixed labels
// terminated by a zero byte, and returns the number of bytes written.
// len(dst) is the remaining capacity; nothing is written unless the whole
// encoding fits.
func EncodeName(dst []byte, name string) (int, error) {
	size, err := encodedNameLen(name)
	if err != nil {
		return 0, err
	}
	if size > len(dst) {
		return 0, fmt.Errorf("%w: name needs %d bytes, %d left", ErrBufferExhausted, size, len(dst))
	}
	if size == 1 {
		dst[0] = 0
		return 1, nil
	}
	if name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}

	off := 0
	start := 0
	for i := 0; i <= len(name); i++ {
		if i < len(name) && name[i] != '.' {
			continue
		}
		dst[off] = byte(i - start)
		off++
		off += copy(dst[off:], name[start:i])
		start = i + 1
	}
	dst[off] = 0
	return off + 1, nil
}
