package ipld

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MarshalJSONValue renders v in the loose JSON wire form used for task
// metadata, receipt "meta", and workflow-submission payloads: plain JSON
// scalars for bool/string/number, `{"bytes": "<base64>"}` for byte
// strings, and `{"/": "<cid>"}` for links. This is a convenience form for
// human/RPC-facing JSON, not the canonical fingerprinted encoding — two
// JSON texts that differ only in map key order still fingerprint
// identically because fingerprinting always goes through Encode, never
// through this path.
func MarshalJSONValue(v Value) ([]byte, error) {
	tree, err := toJSONTree(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

func toJSONTree(v Value) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return t, nil
	case string:
		return t, nil
	case []byte:
		return map[string]string{"bytes": base64.StdEncoding.EncodeToString(t)}, nil
	case List:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			conv, err := toJSONTree(elem)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case []Value:
		return toJSONTree(List(t))
	case Map:
		out := make(map[string]interface{}, len(t))
		for k, elem := range t {
			conv, err := toJSONTree(elem)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case map[string]Value:
		return toJSONTree(Map(t))
	case Link:
		return map[string]string{"/": t.Fingerprint.String()}, nil
	default:
		return nil, shapeMismatch("unencodable Go type " + typeName(v))
	}
}

// UnmarshalJSONValue parses the loose JSON wire form back into a Value.
// `{"/": "<cid>"}` maps decode as Link; `{"bytes": "<base64>"}` maps
// decode as []byte; whole-number JSON literals decode as int64, all
// other numbers as float64.
func UnmarshalJSONValue(b []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, invalidEncoding("malformed JSON: " + err.Error())
	}
	return fromJSONTree(raw)
}

func fromJSONTree(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, invalidEncoding(fmt.Sprintf("malformed number %q", t.String()))
		}
		return f, nil
	case string:
		return t, nil
	case []interface{}:
		out := make(List, len(t))
		for i, elem := range t {
			conv, err := fromJSONTree(elem)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]interface{}:
		if link, ok := t["/"]; ok && len(t) == 1 {
			s, ok := link.(string)
			if !ok {
				return nil, invalidEncoding("link value must be a string")
			}
			fp, err := ParseFingerprint(s)
			if err != nil {
				return nil, invalidEncoding("malformed link: " + err.Error())
			}
			return Link{Fingerprint: fp}, nil
		}
		if enc, ok := t["bytes"]; ok && len(t) == 1 {
			s, ok := enc.(string)
			if !ok {
				return nil, invalidEncoding("bytes value must be a string")
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, invalidEncoding("malformed base64 bytes: " + err.Error())
			}
			return b, nil
		}
		out := make(Map, len(t))
		for k, elem := range t {
			conv, err := fromJSONTree(elem)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, invalidEncoding(fmt.Sprintf("unsupported JSON value %T", raw))
	}
}
