package execute

import (
	"bytes"
	"encoding/json"
)

var _ json.Marshaler = (*orderedObject)(nil)

// orderedObject is a response object that serializes its keys in selection order.
type orderedObject struct {
	keys   []string
	values []interface{}
}

func newOrderedObject(keys []string) *orderedObject {
	return &orderedObject{
		keys:   keys,
		values: make([]interface{}, len(keys)),
	}
}

func (o *orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i != 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
		buf.WriteByte(':')
		b, err = json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
