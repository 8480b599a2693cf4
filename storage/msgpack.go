package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
)

func msgpackMarshalPanic(val interface{}) []byte {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf).UseCompactEncoding(true).SortMapKeys(true)
	err := enc.Encode(val)
	if err != nil {
		panic(fmt.Errorf("msgpackMarshalPanic: %#v %s", val, err.Error()))
	}
	return buf.Bytes()
}

func msgpackUnmarshal(data []byte, val interface{}) error {
	err := msgpack.Unmarshal(data, val)
	if err == nil {
		return err
	}
	return fmt.Errorf("msgpackUnmarshal: %s %s", hex.EncodeToString(data), err.Error())
}
