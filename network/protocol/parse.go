/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

package protocol

import (
	"math"
	"strings"
)

// matchString resolves an already-lowercased, already-trimmed name to a protocol.
func matchString(s string) NetworkProtocol {
	switch s {
	case "unix":
		return NetworkUnix
	case "tcp":
		return NetworkTCP
	case "tcp4":
		return NetworkTCP4
	case "tcp6":
		return NetworkTCP6
	case "udp":
		return NetworkUDP
	case "udp4":
		return NetworkUDP4
	case "udp6":
		return NetworkUDP6
	case "ip":
		return NetworkIP
	case "ip4":
		return NetworkIP4
	case "ip6":
		return NetworkIP6
	case "unixgram":
		return NetworkUnixGram
	default:
		return NetworkEmpty
	}
}

// trimQuote strips a single matching pair of surrounding quote characters
// ('"', '\'' or '`'), if present.
func trimQuote(s string) string {
	if len(s) < 2 {
		return s
	}

	first := s[0]
	last := s[len(s)-1]

	if first != last {
		return s
	}

	switch first {
	case '"', '\'', '`':
		return s[1 : len(s)-1]
	default:
		return s
	}
}

// Parse resolves a protocol name to a NetworkProtocol. It is tolerant of
// surrounding whitespace and a single layer of quoting, and is case-insensitive.
// Unknown input returns NetworkEmpty.
func Parse(s string) NetworkProtocol {
	s = strings.TrimSpace(s)
	s = trimQuote(s)
	s = strings.TrimSpace(s)
	return matchString(strings.ToLower(s))
}

// ParseBytes behaves like Parse but accepts a byte slice.
func ParseBytes(p []byte) NetworkProtocol {
	return Parse(string(p))
}

// ParseInt64 resolves the numeric constant value of a protocol back to a
// NetworkProtocol. Values outside the valid uint8 protocol range return
// NetworkEmpty.
func ParseInt64(i int64) NetworkProtocol {
	if i <= 0 || i > math.MaxUint8 {
		return NetworkEmpty
	}

	p := NetworkProtocol(i)
	if !p.valid() {
		return NetworkEmpty
	}

	return p
}
