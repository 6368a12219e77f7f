package credentials

// Store persists the credential pair under the fixed keys AccessTokenKey and
// RefreshTokenKey. Load returns a zero Pair and no error when nothing is stored.
type Store interface {
	Load() (Pair, error)
	Save(pair Pair) error
	Clear() error
}
