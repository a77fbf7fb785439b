package store

import "context"

// MemoryBackend is a plain map. It never fails.
type MemoryBackend struct {
	data map[string]Value
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: map[string]Value{}}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (Value, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryBackend) Put(_ context.Context, key string, v Value) error {
	m.data[key] = v
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	clear(m.data)
	return nil
}

func (m *MemoryBackend) Stats(context.Context) (Stats, error) {
	var st Stats
	for _, v := range m.data {
		switch v.Kind() {
		case KindRaw:
			st.Raw++
		case KindImage:
			st.Images++
		}
	}
	return st, nil
}
