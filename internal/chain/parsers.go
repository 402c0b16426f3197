package chain

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// Parameter types understood by the RPC server.
const (
	ParamInteger   = "Integer"
	ParamHash160   = "Hash160"
	ParamByteArray = "ByteArray"
	ParamString    = "String"
	ParamBoolean   = "Boolean"
	ParamAny       = "Any"
)

func NewIntegerParam(v *big.Int) ContractParam {
	if v == nil {
		v = new(big.Int)
	}
	return ContractParam{Type: ParamInteger, Value: v.String()}
}

func NewInt64Param(v int64) ContractParam {
	return NewIntegerParam(big.NewInt(v))
}

// NewHash160Param takes a canonical "0x" script hash.
func NewHash160Param(scriptHash string) ContractParam {
	return ContractParam{Type: ParamHash160, Value: scriptHash}
}

func NewByteArrayParam(b []byte) ContractParam {
	return ContractParam{Type: ParamByteArray, Value: base64.StdEncoding.EncodeToString(b)}
}

func NewStringParam(s string) ContractParam {
	return ContractParam{Type: ParamString, Value: s}
}

// NewAnyParam is the null argument, e.g. the data parameter of a NEP-17 transfer.
func NewAnyParam() ContractParam {
	return ContractParam{Type: ParamAny}
}

func NewBooleanParam(b bool) ContractParam {
	return ContractParam{Type: ParamBoolean, Value: b}
}

// ParseBoolean accepts Boolean items and the Integer/ByteString encodings some contracts return.
func ParseBoolean(item StackItem) (bool, error) {
	switch item.Type {
	case "Boolean":
		var value bool
		if err := json.Unmarshal(item.Value, &value); err != nil {
			return false, err
		}
		return value, nil
	case "Integer":
		n, err := ParseInteger(item)
		if err != nil {
			return false, err
		}
		return n.Sign() != 0, nil
	case "ByteString", "Buffer":
		b, err := ParseByteArray(item)
		if err != nil {
			return false, err
		}
		for _, x := range b {
			if x != 0 {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unexpected type: %s", item.Type)
}

func ParseInteger(item StackItem) (*big.Int, error) {
	if item.Type != "Integer" {
		return nil, fmt.Errorf("unexpected type: %s", item.Type)
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}

// ParseByteArray decodes a ByteString/Buffer item. Null yields nil.
func ParseByteArray(item StackItem) ([]byte, error) {
	switch item.Type {
	case "ByteString", "Buffer":
		var value string
		if err := json.Unmarshal(item.Value, &value); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(value)
	case "Null":
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected type: %s", item.Type)
}

// ParseHash160 decodes a 20-byte script hash into its canonical "0x" form.
func ParseHash160(item StackItem) (string, error) {
	b, err := ParseByteArray(item)
	if err != nil {
		return "", err
	}
	if len(b) != 20 {
		return "", fmt.Errorf("expected 20 bytes, got %d", len(b))
	}
	reversed := make([]byte, len(b))
	for i, x := range b {
		reversed[len(b)-1-i] = x
	}
	return "0x" + hex.EncodeToString(reversed), nil
}

func ParseString(item StackItem) (string, error) {
	b, err := ParseByteArray(item)
	if err != nil {
		return "", fmt.Errorf("unexpected type for string: %s", item.Type)
	}
	return string(b), nil
}
