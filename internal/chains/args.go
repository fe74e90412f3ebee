package chains

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParsedABI parses the artifact ABI
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing ABI of %s: %w", a.Name, err)
	}
	return parsed, nil
}

// ConstructorArgs converts loosely typed values (as decoded from TOML, JSON or the
// artifact store) into the Go types the constructor ABI expects
func (a *Artifact) ConstructorArgs(values []any) ([]any, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}
	inputs := parsed.Constructor.Inputs
	if len(inputs) != len(values) {
		return nil, fmt.Errorf("%s constructor takes %d arguments, got %d", a.Name, len(inputs), len(values))
	}

	out := make([]any, len(values))
	for i, in := range inputs {
		v, err := convertArg(in.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("constructor argument %d (%s %s): %w", i, in.Type.String(), in.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// PackConstructorArgs ABI-encodes constructor arguments, the suffix explorers
// strip from the creation input
func (a *Artifact) PackConstructorArgs(values []any) ([]byte, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}
	args, err := a.ConstructorArgs(values)
	if err != nil {
		return nil, err
	}
	packed, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("packing constructor arguments: %w", err)
	}
	return packed, nil
}

func convertArg(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case common.Address:
			return x, nil
		case string:
			if !common.IsHexAddress(x) {
				return nil, fmt.Errorf("invalid address %q", x)
			}
			return common.HexToAddress(x), nil
		}
		return nil, fmt.Errorf("expected address, got %T", v)

	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for unsigned type", n)
		}
		if t.Size > 64 {
			if n.BitLen() > t.Size {
				return nil, fmt.Errorf("value %s overflows %s", n, t.String())
			}
			return n, nil
		}
		rv := reflect.New(t.GetType()).Elem()
		if t.T == abi.IntTy {
			if !n.IsInt64() || rv.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t.String())
			}
			rv.SetInt(n.Int64())
		} else {
			if !n.IsUint64() || rv.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t.String())
			}
			rv.SetUint(n.Uint64())
		}
		return rv.Interface(), nil

	case abi.BoolTy:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		}
		return nil, fmt.Errorf("expected bool, got %T", v)

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case abi.BytesTy:
		return toBytes(v)

	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		rv := reflect.New(t.GetType()).Elem()
		reflect.Copy(rv, reflect.ValueOf(b))
		return rv.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", v)
		}
		var rv reflect.Value
		if t.T == abi.SliceTy {
			rv = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			if len(items) != t.Size {
				return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
			}
			rv = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			conv, err := convertArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			rv.Index(i).Set(reflect.ValueOf(conv))
		}
		return rv.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported ABI type %s", t.String())
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case int:
		return big.NewInt(int64(x)), nil
	case int32:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%v is not an integer", x)
		}
		n, _ := big.NewFloat(x).Int(nil)
		return n, nil
	case *big.Int:
		return new(big.Int).Set(x), nil
	case json.Number:
		return parseBigInt(x.String())
	case string:
		return parseBigInt(x)
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func parseBigInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := hexutil.Decode(x)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q: %w", x, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected hex bytes, got %T", v)
}
