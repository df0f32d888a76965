package envelope

import "github.com/vmihailenco/msgpack/v5"

// TypedValue is the envelope payload's opaque typed-value container: a type
// tag plus the msgpack-encoded bytes of the value it names. Receivers
// discriminate on TypeURL before calling Unpack.
type TypedValue struct {
	TypeURL string `msgpack:"type_url"`
	Data    []byte `msgpack:"data"`
}

// Pack msgpack-marshals v and tags it with typeURL.
func Pack(v any, typeURL string) (TypedValue, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return TypedValue{}, err
	}
	return TypedValue{TypeURL: typeURL, Data: data}, nil
}

// Unpack msgpack-unmarshals tv's bytes into out. Callers are expected to
// have already checked tv.TypeURL against what they expect; Unpack does not
// enforce the match itself, mirroring protobuf Any's pack/unpack contract.
func Unpack(tv TypedValue, out any) error {
	return msgpack.Unmarshal(tv.Data, out)
}
