package router

import "github.com/fxamacker/cbor/v2"

func cborMarshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}
