package querycache

import "net/url"

// Key identifies a cached request. Two keys built from the same endpoint and
// the same parameters compare equal regardless of parameter order.
type Key struct {
	endpoint  string
	canonical string
}

func NewKey(endpoint string, params map[string]string) Key {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	canonical := endpoint
	// Encode sorts by parameter name.
	if encoded := values.Encode(); encoded != "" {
		canonical += "?" + encoded
	}
	return Key{endpoint: endpoint, canonical: canonical}
}

func (k Key) Endpoint() string {
	return k.endpoint
}

func (k Key) String() string {
	return k.canonical
}
