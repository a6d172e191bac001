package kvstore

// Fallback pairs the two persistence surfaces. Reads consult the
// authoritative store first and fall back to the secondary, so state
// written under either "remember me" choice is still found after a
// restart. Writes go only to the authoritative store — the one matching
// the current login's "remember me" choice — keeping a key set from
// being split across both surfaces. Removes hit both stores so a key
// can never survive in the shadowed surface.
type Fallback struct {
	authoritative Store
	secondary     Store
}

var _ Store = (*Fallback)(nil)

func NewFallback(authoritative, secondary Store) *Fallback {
	return &Fallback{authoritative: authoritative, secondary: secondary}
}

func (f *Fallback) Get(key string) (string, bool, error) {
	value, found, err := f.authoritative.Get(key)
	if err != nil || found {
		return value, found, err
	}
	return f.secondary.Get(key)
}

func (f *Fallback) Set(key, value string) error {
	// Clear any shadow copy before writing, so the key lives in
	// exactly one store.
	if err := f.secondary.Remove(key); err != nil {
		return err
	}
	return f.authoritative.Set(key, value)
}

func (f *Fallback) Remove(key string) error {
	if err := f.authoritative.Remove(key); err != nil {
		return err
	}
	return f.secondary.Remove(key)
}

func (f *Fallback) Close() error {
	if err := f.authoritative.Close(); err != nil {
		return err
	}
	return f.secondary.Close()
}
