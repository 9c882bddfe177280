package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrMalformedCatalog wraps any structural decode failure in Load.
type ErrMalformedCatalog struct {
	Err error
}

func (e *ErrMalformedCatalog) Error() string {
	return fmt.Sprintf("catalog: malformed catalog: %v", e.Err)
}

func (e *ErrMalformedCatalog) Unwrap() error { return e.Err }

type jsonDoc struct {
	// HostCommands is decoded separately, by token, to preserve
	// declaration order — see orderedObject. encoding/json's map
	// decoding randomizes key order, which first-match-wins host
	// resolution cannot tolerate.
	HostCommands    json.RawMessage            `json:"host_commands"`
	ConsoleCommands map[string]json.RawMessage `json:"console_commands"`
	GCodes          map[string]json.RawMessage `json:"g_codes"`
	MCodes          map[string]json.RawMessage `json:"m_codes"`
}

type jsonDescriptor struct {
	Response string `json:"response"`
	TimeMs   int    `json:"time_ms"`
	SendsOK  bool   `json:"sends_ok"`
}

var knownDescriptorFields = []string{"response", "time_ms", "sends_ok"}

// Load decodes a catalog JSON document into a *Catalog, tagging each
// entry with its resolution category and collecting unrecognized fields
// into Descriptor.Extra.
func Load(raw []byte) (*Catalog, error) {
	var doc jsonDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ErrMalformedCatalog{Err: err}
	}

	c := &Catalog{
		Host:    map[string]*Descriptor{},
		Console: map[string]*Descriptor{},
		GCode:   map[string]*Descriptor{},
		MCode:   map[string]*Descriptor{},
	}

	if doc.HostCommands != nil {
		order, values, err := orderedObject(doc.HostCommands)
		if err != nil {
			return nil, &ErrMalformedCatalog{Err: err}
		}
		for _, key := range order {
			d, err := decodeDescriptor(key, CategoryHost, values[key])
			if err != nil {
				return nil, &ErrMalformedCatalog{Err: err}
			}
			c.Host[key] = d
		}
		c.HostOrder = order
	}

	tables := []struct {
		src map[string]json.RawMessage
		dst map[string]*Descriptor
		cat Category
	}{
		{doc.ConsoleCommands, c.Console, CategoryConsole},
		{doc.GCodes, c.GCode, CategoryGCode},
		{doc.MCodes, c.MCode, CategoryMCode},
	}

	for _, table := range tables {
		for key, rawDesc := range table.src {
			d, err := decodeDescriptor(key, table.cat, rawDesc)
			if err != nil {
				return nil, &ErrMalformedCatalog{Err: err}
			}
			table.dst[key] = d
		}
	}

	return c, nil
}

// orderedObject decodes a JSON object into its key declaration order plus
// a lookup map, by streaming tokens rather than unmarshaling into a map.
// Host-command resolution is first-match-wins over prefix candidates, so
// the order keys were written in has to survive the decode.
func orderedObject(raw json.RawMessage) (order []string, values map[string]json.RawMessage, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	values = map[string]json.RawMessage{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected string key, got %v", keyTok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, fmt.Errorf("entry %q: %w", key, err)
		}
		order = append(order, key)
		values[key] = val
	}
	return order, values, nil
}

func decodeDescriptor(name string, cat Category, raw json.RawMessage) (*Descriptor, error) {
	var known jsonDescriptor
	if err := json.Unmarshal(raw, &known); err != nil {
		return nil, fmt.Errorf("entry %q: %w", name, err)
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("entry %q: %w", name, err)
	}
	for _, k := range knownDescriptorFields {
		delete(all, k)
	}
	if len(all) == 0 {
		all = nil
	}

	return &Descriptor{
		Name:     name,
		Response: known.Response,
		TimeMs:   known.TimeMs,
		SendsOK:  known.SendsOK,
		Category: cat,
		Extra:    all,
	}, nil
}
