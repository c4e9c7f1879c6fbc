// Package lineproto converts device metrics to and from InfluxDB line protocol.
package lineproto

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

var ErrNoFields = errors.New("lineproto: point has no numeric fields")

var (
	minTime = time.Unix(0, math.MinInt64)
	maxTime = time.Unix(0, math.MaxInt64)
)

// ValidName reports whether s can be written as a measurement, tag key, tag
// value or field key: non-empty UTF-8 without control characters and without
// a trailing backslash.
func ValidName(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7f {
			return false
		}
	}
	return s[len(s)-1] != '\\'
}

// ValidTime reports whether t fits a nanosecond timestamp.
func ValidTime(t time.Time) bool {
	return !t.Before(minTime) && !t.After(maxTime)
}

// Encode renders metrics as line protocol with nanosecond timestamps.
// customer_id and device_id are always emitted as tags and win over any
// client tag of the same name. Non-finite field values are skipped; a point
// left without fields is an error, as is any point the format cannot carry.
func Encode(metrics []domain.Metric) ([]byte, error) {
	var out []byte
	for _, m := range metrics {
		line, err := encodeLine(m)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
	}
	return out, nil
}

// EncodeSkipping is Encode for stored data: points that cannot be encoded
// are left out and reported in skipped instead of failing the batch.
func EncodeSkipping(metrics []domain.Metric) (out []byte, skipped []error) {
	for _, m := range metrics {
		line, err := encodeLine(m)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		out = append(out, line...)
	}
	return out, skipped
}

func encodeLine(m domain.Metric) ([]byte, error) {
	tags := make(map[string]string, len(m.Tags)+2)
	for k, v := range m.Tags {
		if k == "" || v == "" {
			continue
		}
		tags[k] = v
	}
	tags[domain.MetricTagCustomerID] = m.CustomerID.String()
	tags[domain.MetricTagDeviceID] = m.DeviceID.String()

	fieldKeys := make([]string, 0, len(m.Fields))
	for k, v := range m.Fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		fieldKeys = append(fieldKeys, k)
	}
	if len(fieldKeys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFields, m.Measurement)
	}
	sort.Strings(fieldKeys)

	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	enc.StartLine(m.Measurement)
	// Tags must be added in lexical key order.
	for _, k := range sortedKeys(tags) {
		enc.AddTag(k, tags[k])
	}
	for _, k := range fieldKeys {
		v, ok := lineprotocol.FloatValue(m.Fields[k])
		if !ok {
			continue
		}
		enc.AddField(k, v)
	}
	enc.EndLine(m.RecordedAt)
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("lineproto: encode %q: %w", m.Measurement, err)
	}
	return enc.Bytes(), nil
}

// Point is one decoded line before it is bound to a device.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Time        time.Time
}

// Decode parses line protocol. Integer, unsigned and boolean fields are
// converted to float64 (booleans as 0/1); string fields are ignored. Lines
// without a timestamp get defaultTime. Lines left without numeric fields are
// rejected with ErrNoFields.
func Decode(data []byte, defaultTime time.Time) ([]Point, error) {
	dec := lineprotocol.NewDecoderWithBytes(data)
	var points []Point
	line := 0
	for dec.Next() {
		line++
		m, err := dec.Measurement()
		if err != nil {
			return nil, fmt.Errorf("lineproto: line %d: %w", line, err)
		}
		p := Point{
			Measurement: string(m),
			Tags:        map[string]string{},
			Fields:      map[string]float64{},
		}
		for {
			key, val, err := dec.NextTag()
			if err != nil {
				return nil, fmt.Errorf("lineproto: line %d: %w", line, err)
			}
			if key == nil {
				break
			}
			p.Tags[string(key)] = string(val)
		}
		for {
			key, val, err := dec.NextField()
			if err != nil {
				return nil, fmt.Errorf("lineproto: line %d: %w", line, err)
			}
			if key == nil {
				break
			}
			if f, ok := toFloat(val); ok {
				p.Fields[string(key)] = f
			}
		}
		ts, err := dec.Time(lineprotocol.Nanosecond, defaultTime)
		if err != nil {
			return nil, fmt.Errorf("lineproto: line %d: %w", line, err)
		}
		p.Time = ts
		if len(p.Fields) == 0 {
			return nil, fmt.Errorf("%w: line %d", ErrNoFields, line)
		}
		points = append(points, p)
	}
	return points, nil
}

func toFloat(v lineprotocol.Value) (float64, bool) {
	switch v.Kind() {
	case lineprotocol.Float:
		return v.FloatV(), true
	case lineprotocol.Int:
		return float64(v.IntV()), true
	case lineprotocol.Uint:
		return float64(v.UintV()), true
	case lineprotocol.Bool:
		if v.BoolV() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
