package credentials

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	credentialsFileName = "credentials.json"
	saltLength          = 16
	nonceLength         = 24
	keyLength           = 32
	scryptN             = 1 << 15
	scryptR             = 8
	scryptP             = 1
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the credential pair in a single JSON file. When a passphrase
// is supplied the file content is sealed with NaCl secretbox under a key
// derived with scrypt.
type FileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// sealedFile is the on-disk layout of a sealed credential file.
type sealedFile struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Box   []byte `json:"box"`
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithPassphrase seals the credential file with the given passphrase.
func WithPassphrase(passphrase string) FileStoreOption {
	return func(fs *FileStore) {
		fs.passphrase = passphrase
	}
}

// NewFileStore creates a store writing to credentials.json inside folder.
func NewFileStore(folder string, options ...FileStoreOption) (*FileStore, error) {
	if folder == "" {
		return nil, fmt.Errorf("[NewFileStore] folder is required")
	}
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, fmt.Errorf("[NewFileStore] failed to create folder: %w", err)
	}

	fs := &FileStore{path: filepath.Join(folder, credentialsFileName)}
	for _, opt := range options {
		opt(fs)
	}
	return fs, nil
}

// Path returns the credential file location.
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Load() (Pair, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return Pair{}, nil
	}
	if err != nil {
		return Pair{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	if fs.passphrase != "" {
		if data, err = fs.open(data); err != nil {
			return Pair{}, err
		}
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return Pair{}, apperrors.Wrapf(apperrors.ErrCorruptStore, "decoding %s", fs.path)
	}
	pair := Pair{Access: values[AccessTokenKey], Refresh: values[RefreshTokenKey]}
	if !pair.Complete() {
		return Pair{}, nil
	}
	return pair, nil
}

func (fs *FileStore) Save(pair Pair) error {
	if !pair.Complete() {
		return fmt.Errorf("refusing to store an incomplete credential pair")
	}

	data, err := json.Marshal(map[string]string{
		AccessTokenKey:  pair.Access,
		RefreshTokenKey: pair.Refresh,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.passphrase != "" {
		if data, err = fs.seal(data); err != nil {
			return err
		}
	}
	return writeFileAtomic(fs.path, data)
}

func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

func (fs *FileStore) seal(plain []byte) ([]byte, error) {
	sf := sealedFile{
		Salt:  make([]byte, saltLength),
		Nonce: make([]byte, nonceLength),
	}
	if _, err := rand.Read(sf.Salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := rand.Read(sf.Nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	key, err := deriveKey(fs.passphrase, sf.Salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceLength]byte
	copy(nonce[:], sf.Nonce)
	sf.Box = secretbox.Seal(nil, plain, &nonce, key)

	return json.Marshal(sf)
}

func (fs *FileStore) open(data []byte) ([]byte, error) {
	var sf sealedFile
	if err := json.Unmarshal(data, &sf); err != nil || len(sf.Nonce) != nonceLength || len(sf.Box) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptStore, "decoding sealed %s", fs.path)
	}

	key, err := deriveKey(fs.passphrase, sf.Salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceLength]byte
	copy(nonce[:], sf.Nonce)

	plain, ok := secretbox.Open(nil, sf.Box, &nonce, key)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrSealedStore, "opening %s", fs.path)
	}
	return plain, nil
}

func deriveKey(passphrase string, salt []byte) (*[keyLength]byte, error) {
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	var key [keyLength]byte
	copy(key[:], derived)
	return &key, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}
