package storage

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// ValueType represents the type of a property value
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeInt
	TypeBool
	TypeDate
)

// Value represents a typed property value
type Value struct {
	Type ValueType
	Data []byte
}

// Helper functions to create typed values
func StringValue(s string) Value {
	return Value{Type: TypeString, Data: []byte(s)}
}

func IntValue(i int64) Value {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, uint64(i))
	return Value{Type: TypeInt, Data: data}
}

func BoolValue(b bool) Value {
	data := []byte{0}
	if b {
		data[0] = 1
	}
	return Value{Type: TypeBool, Data: data}
}

// DateValue stores a calendar day (UTC) as seconds since the epoch.
func DateValue(t time.Time) Value {
	y, m, d := t.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, uint64(day.Unix()))
	return Value{Type: TypeDate, Data: data}
}

// Decode methods
func (v Value) AsString() (string, error) {
	if v.Type != TypeString {
		return "", fmt.Errorf("value is not a string")
	}
	return string(v.Data), nil
}

func (v Value) AsInt() (int64, error) {
	if v.Type != TypeInt || len(v.Data) != 8 {
		return 0, fmt.Errorf("value is not an int")
	}
	return int64(binary.LittleEndian.Uint64(v.Data)), nil
}

func (v Value) AsBool() (bool, error) {
	if v.Type != TypeBool || len(v.Data) != 1 {
		return false, fmt.Errorf("value is not a bool")
	}
	return v.Data[0] == 1, nil
}

func (v Value) AsDate() (time.Time, error) {
	if v.Type != TypeDate || len(v.Data) != 8 {
		return time.Time{}, fmt.Errorf("value is not a date")
	}
	return time.Unix(int64(binary.LittleEndian.Uint64(v.Data)), 0).UTC(), nil
}

// String renders the value for comparisons and diagnostics.
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return string(v.Data)
	case TypeInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10)
	case TypeBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case TypeDate:
		d, _ := v.AsDate()
		return d.Format("2006-01-02")
	default:
		return fmt.Sprintf("%x", v.Data)
	}
}

// Equal compares type and payload.
func (v Value) Equal(other Value) bool {
	return v.Type == other.Type && string(v.Data) == string(other.Data)
}

// Node represents a vertex in the graph
type Node struct {
	ID         uint64
	Labels     []string
	Properties map[string]Value
	CreatedAt  int64
}

// Edge represents a relationship between nodes
type Edge struct {
	ID         uint64
	FromNodeID uint64
	ToNodeID   uint64
	Type       string
	Properties map[string]Value
	CreatedAt  int64
}

// Clone creates a deep copy of a node
func (n *Node) Clone() *Node {
	clone := &Node{
		ID:         n.ID,
		Labels:     make([]string, len(n.Labels)),
		Properties: make(map[string]Value, len(n.Properties)),
		CreatedAt:  n.CreatedAt,
	}
	copy(clone.Labels, n.Labels)
	for k, v := range n.Properties {
		clone.Properties[k] = v
	}
	return clone
}

// HasLabel checks if node has a specific label
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// GetProperty gets a property value
func (n *Node) GetProperty(key string) (Value, bool) {
	val, ok := n.Properties[key]
	return val, ok
}

// StringProperty returns the property as a string, or "" when absent or not a string.
func (n *Node) StringProperty(key string) string {
	val, ok := n.Properties[key]
	if !ok {
		return ""
	}
	s, err := val.AsString()
	if err != nil {
		return ""
	}
	return s
}

// Clone creates a deep copy of an edge
func (e *Edge) Clone() *Edge {
	clone := &Edge{
		ID:         e.ID,
		FromNodeID: e.FromNodeID,
		ToNodeID:   e.ToNodeID,
		Type:       e.Type,
		Properties: make(map[string]Value, len(e.Properties)),
		CreatedAt:  e.CreatedAt,
	}
	for k, v := range e.Properties {
		clone.Properties[k] = v
	}
	return clone
}

// GetProperty gets a property value
func (e *Edge) GetProperty(key string) (Value, bool) {
	val, ok := e.Properties[key]
	return val, ok
}

// Statistics tracks database statistics
type Statistics struct {
	NodeCount    uint64
	EdgeCount    uint64
	Commits      uint64
	Rollbacks    uint64
	LastSnapshot time.Time
}
