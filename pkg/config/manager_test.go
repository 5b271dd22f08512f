package config

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSection struct {
	id          string
	data        map[string]interface{}
	validateErr error
}

func (s *stubSection) ID() string                                { return s.id }
func (s *stubSection) Title() string                             { return s.id }
func (s *stubSection) Description() string                       { return "" }
func (s *stubSection) Data() map[string]interface{}              { return s.data }
func (s *stubSection) SetData(data map[string]interface{}) error { s.data = data; return nil }
func (s *stubSection) Validate() error                           { return s.validateErr }
func (s *stubSection) Reset()                                    { s.data = map[string]interface{}{} }

type memStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sections: make(map[string]map[string]interface{})}
}

func (m *memStore) Load() error { return m.loadErr }

func (m *memStore) Save() error {
	m.saves++
	return m.saveErr
}

func (m *memStore) GetSection(id string) (map[string]interface{}, error) {
	return m.sections[id], nil
}

func (m *memStore) SetSection(id string, data map[string]interface{}) error {
	m.sections[id] = data
	return nil
}

func (m *memStore) GetAll() (map[string]map[string]interface{}, error) {
	return m.sections, nil
}

func TestManager_Register(t *testing.T) {
	m := NewManager(newMemStore())
	require.NoError(t, m.RegisterSection(&stubSection{id: "b"}))
	require.NoError(t, m.RegisterSection(&stubSection{id: "a"}))
	assert.Error(t, m.RegisterSection(&stubSection{id: "a"}))

	var ids []string
	for _, s := range m.GetSections() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"b", "a"}, ids)

	_, ok := m.GetSection("missing")
	assert.False(t, ok)
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data", func(t *testing.T) {
		store := newMemStore()
		store.sections["one"] = map[string]interface{}{"k": "v"}
		m := NewManager(store)
		one := &stubSection{id: "one"}
		two := &stubSection{id: "two", data: map[string]interface{}{"keep": true}}
		require.NoError(t, m.RegisterSection(one))
		require.NoError(t, m.RegisterSection(two))

		require.NoError(t, m.LoadAll())
		assert.Equal(t, "v", one.data["k"])
		assert.Equal(t, true, two.data["keep"], "sections without stored data keep defaults")
	})

	t.Run("propagates store error", func(t *testing.T) {
		store := newMemStore()
		store.loadErr = errors.New("disk gone")
		assert.Error(t, NewManager(store).LoadAll())
	})
}

func TestManager_Save(t *testing.T) {
	tests := []struct {
		name      string
		section   *stubSection
		saveErr   error
		wantErr   bool
		wantSaved bool
	}{
		{name: "valid", section: &stubSection{id: "s", data: map[string]interface{}{"x": 1}}, wantSaved: true},
		{name: "invalid", section: &stubSection{id: "s", validateErr: errors.New("bad")}, wantErr: true},
		{name: "store failure", section: &stubSection{id: "s"}, saveErr: errors.New("io"), wantErr: true, wantSaved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, saveOne := range []bool{false, true} {
				store := newMemStore()
				store.saveErr = tt.saveErr
				m := NewManager(store)
				require.NoError(t, m.RegisterSection(tt.section))

				var err error
				if saveOne {
					err = m.SaveSection("s")
				} else {
					err = m.SaveAll()
				}
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
				_, saved := store.sections["s"]
				assert.Equal(t, tt.wantSaved, saved)
			}
		})
	}

	assert.Error(t, NewManager(newMemStore()).SaveSection("nope"))
}

func TestManager_ResetAll(t *testing.T) {
	m := NewManager(newMemStore())
	s := &stubSection{id: "s", data: map[string]interface{}{"x": 1}}
	require.NoError(t, m.RegisterSection(s))
	m.ResetAll()
	assert.Empty(t, s.data)
}

func TestManager_ConcurrentRegister(t *testing.T) {
	m := NewManager(newMemStore())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.RegisterSection(&stubSection{id: fmt.Sprintf("s%d", i)})
			m.GetSections()
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.GetSections(), 10)
}
