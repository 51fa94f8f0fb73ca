package yad2

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"apartments-scraper/models"
)

// ErrMalformedPayload is returned when a feed response has no markers list.
var ErrMalformedPayload = errors.New("malformed feed payload")

// DecodeFeed extracts the markers of a map feed response and flattens each
// one into a RawRecord. The feed nests them as {"data":{"markers":[...]}};
// a bare top-level "markers" list is accepted too.
func DecodeFeed(body []byte) ([]models.RawRecord, error) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&payload); err != nil {
		return nil, eris.Wrapf(ErrMalformedPayload, "decode json: %v", err)
	}

	markers, ok := findMarkers(payload)
	if !ok {
		return nil, eris.Wrap(ErrMalformedPayload, "no markers section")
	}

	records := make([]models.RawRecord, 0, len(markers))
	for _, m := range markers {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		rec := make(models.RawRecord, len(obj))
		flatten("", obj, rec)
		records = append(records, rec)
	}
	return records, nil
}

func findMarkers(payload map[string]any) ([]any, bool) {
	if data, ok := payload["data"].(map[string]any); ok {
		if markers, ok := data["markers"].([]any); ok {
			return markers, true
		}
	}
	if markers, ok := payload["markers"].([]any); ok {
		return markers, true
	}
	return nil, false
}

// flatten writes nested objects as dotted keys. Arrays and scalars are kept
// as values.
func flatten(prefix string, obj map[string]any, out models.RawRecord) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}
