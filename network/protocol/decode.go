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
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// unmarshalBytes strips one layer of single quotes, then one layer of double
// quotes (in that order - nested nested quoting is deliberately not fully
// unwound), before resolving the remaining text to a protocol.
func unmarshalBytes(val []byte) NetworkProtocol {
	s := string(val)
	s = strings.Trim(s, "'")
	s = strings.Trim(s, "\"")
	s = strings.TrimSpace(s)
	return matchString(strings.ToLower(s))
}

func (p *NetworkProtocol) UnmarshalJSON(data []byte) error {
	*p = unmarshalBytes(data)
	return nil
}

func (p *NetworkProtocol) UnmarshalYAML(value *yaml.Node) error {
	*p = unmarshalBytes([]byte(value.Value))
	return nil
}

func (p *NetworkProtocol) UnmarshalTOML(i interface{}) error {
	switch v := i.(type) {
	case []byte:
		*p = unmarshalBytes(v)
		return nil
	case string:
		*p = unmarshalBytes([]byte(v))
		return nil
	default:
		return fmt.Errorf("network protocol: value not in valid format")
	}
}

func (p *NetworkProtocol) UnmarshalText(data []byte) error {
	*p = unmarshalBytes(data)
	return nil
}

func (p *NetworkProtocol) UnmarshalCBOR(data []byte) error {
	*p = unmarshalBytes(data)
	return nil
}
