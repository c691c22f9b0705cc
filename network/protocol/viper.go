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
	"math"
	"reflect"

	libmap "github.com/go-viper/mapstructure/v2"
)

func toInt64(data interface{}) (int64, bool) {
	switch v := data.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func toUint64(data interface{}) (uint64, bool) {
	switch v := data.(type) {
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	default:
		return 0, false
	}
}

// ViperDecoderHook returns a mapstructure.DecodeHookFuncType that decodes
// string or integer configuration values into a NetworkProtocol when
// unmarshaling with Viper. String values are resolved case-insensitively via
// Parse and never error (unknown names decode to NetworkEmpty); integer
// values must resolve to a known protocol constant or the hook errors.
func ViperDecoderHook() libmap.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		var z NetworkProtocol

		if to != reflect.TypeOf(z) {
			return data, nil
		}

		switch from.Kind() {
		case reflect.String:
			s, ok := data.(string)
			if !ok {
				return data, nil
			}
			return Parse(s), nil

		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			v, ok := toInt64(data)
			if !ok {
				return data, nil
			}
			if v < 0 || v > math.MaxUint16 {
				return nil, fmt.Errorf("network protocol: invalid value %d", v)
			}
			if p := ParseInt64(v); p != NetworkEmpty {
				return p, nil
			}
			return nil, fmt.Errorf("network protocol: invalid value %d", v)

		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			v, ok := toUint64(data)
			if !ok {
				return data, nil
			}
			if v > math.MaxUint16 {
				return nil, fmt.Errorf("network protocol: invalid value %d", v)
			}
			if p := ParseInt64(int64(v)); p != NetworkEmpty {
				return p, nil
			}
			return nil, fmt.Errorf("network protocol: invalid value %d", v)

		default:
			return data, nil
		}
	}
}
