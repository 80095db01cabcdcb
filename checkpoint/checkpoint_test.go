// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeKV struct {
	data map[string]string
}

func (kv *fakeKV) Get(k string) (string, error) {
	return kv.data[k], nil
}

func (kv *fakeKV) Set(k string, v any) error {
	kv.data[k] = fmt.Sprint(v)
	return nil
}

func (kv *fakeKV) Del(k string) error {
	delete(kv.data, k)
	return nil
}

func TestKey(t *testing.T) {
	assert.Equal(
		t,
		"zipfinder:checkpoint:address-to-zip:addresses.xlsx",
		Key("address-to-zip", "/data/in/addresses.xlsx"),
	)
}

func TestRedisStore(t *testing.T) {
	kv := &fakeKV{data: make(map[string]string)}
	store := NewRedisStore(kv)
	_, ok, err := store.Load("foo")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Save("foo", 2001))
	row, ok, err := store.Load("foo")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2001, row)

	assert.NoError(t, store.Clear("foo"))
	_, ok, err = store.Load("foo")
	assert.NoError(t, err)
	assert.False(t, ok)

	kv.data["bar"] = "garbage"
	_, _, err = store.Load("bar")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.Save("foo", 11))
	row, ok, _ := store.Load("foo")
	assert.True(t, ok)
	assert.Equal(t, 11, row)
	assert.NoError(t, store.Clear("foo"))
	_, ok, _ = store.Load("foo")
	assert.False(t, ok)
}

func TestNullStore(t *testing.T) {
	var store Store = NullStore{}
	assert.NoError(t, store.Save("foo", 11))
	_, ok, err := store.Load("foo")
	assert.NoError(t, err)
	assert.False(t, ok)
}
