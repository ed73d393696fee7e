package outcome

import "encoding/json"

func marshalLink(l Link) ([]byte, error) { return json.Marshal(l) }

func unmarshalLink(data []byte) (Link, error) {
	var l Link
	err := json.Unmarshal(data, &l)
	return l, err
}
