package encryption

// PlainSealer stores secrets as-is. It is used when no identity is configured;
// the token file then relies on its 0600 permissions alone.
type PlainSealer struct{}

var _ Sealer = PlainSealer{}

func (PlainSealer) Seal(plaintext []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (PlainSealer) Open(sealed []byte) ([]byte, error) {
	return append([]byte(nil), sealed...), nil
}
