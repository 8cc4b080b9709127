package cdf

import (
	"errors"
	"sort"
)

// AttrMap holds attribute values and remembers the order they were added
// in, which is file order when the map comes from the reader.
type AttrMap struct {
	keys        []string
	values      map[string]any
	visibleKeys []string
	hiddenKeys  map[string]bool
}

var ErrKeysDontMatchValues = errors.New("keys don't match values")

func newAttrMap() *AttrMap {
	return &AttrMap{
		values:     map[string]any{},
		hiddenKeys: map[string]bool{},
	}
}

// NewAttrMap builds an AttrMap with the given key order. The keys must
// match the map's keys exactly.
func NewAttrMap(keys []string, values map[string]any) (*AttrMap, error) {
	if len(keys) != len(values) {
		return nil, ErrKeysDontMatchValues
	}
	mapKeys := make([]string, 0, len(values))
	for k := range values {
		mapKeys = append(mapKeys, k)
	}
	sort.Strings(mapKeys)
	sortedKeys := append([]string{}, keys...)
	sort.Strings(sortedKeys)
	for i := range sortedKeys {
		if mapKeys[i] != sortedKeys[i] {
			return nil, ErrKeysDontMatchValues
		}
	}
	am := newAttrMap()
	for _, k := range keys {
		am.Add(k, values[k])
	}
	return am, nil
}

func (am *AttrMap) Add(name string, val any) {
	if _, has := am.values[name]; !has && !am.hiddenKeys[name] {
		am.keys = append(am.keys, name)
		am.visibleKeys = append(am.visibleKeys, name)
	}
	am.values[name] = val
}

func (am *AttrMap) Get(key string) (val any, has bool) {
	val, has = am.values[key]
	return
}

func (am *AttrMap) Has(key string) bool {
	_, has := am.values[key]
	return has
}

// Hide removes a key from Keys while keeping it reachable through Get.
func (am *AttrMap) Hide(hiddenKey string) {
	am.hiddenKeys[hiddenKey] = true
	visibleKeys := []string{}
	for _, key := range am.keys {
		if am.hiddenKeys[key] {
			continue
		}
		visibleKeys = append(visibleKeys, key)
	}
	am.visibleKeys = visibleKeys
}

// Keys returns the visible keys in insertion order.
func (am *AttrMap) Keys() []string {
	return am.visibleKeys
}
