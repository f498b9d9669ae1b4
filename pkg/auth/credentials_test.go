package auth

import (
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// memoryStore is an in-memory TokenStore with error injection
type memoryStore struct {
	name     string
	mu       sync.Mutex
	creds    map[string]Credential
	storeErr error
}

func newMemoryStore(name string) *memoryStore {
	return &memoryStore{name: name, creds: make(map[string]Credential)}
}

func (m *memoryStore) Name() string { return m.name }

func (m *memoryStore) Store(cred *Credential) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.Profile] = *cred
	return nil
}

func (m *memoryStore) Retrieve(profile string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[profile]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &c, nil
}

func (m *memoryStore) Delete(profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[profile]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.creds, profile)
	return nil
}

func TestManagerStoreRetrieveDelete(t *testing.T) {
	primary := newMemoryStore("primary")
	m := NewManagerWithStores(primary)

	name, err := m.Store("", "  apify_api_secret_token  ")
	require.NoError(t, err)
	assert.Equal(t, "primary", name)

	cred, from, err := m.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "primary", from)
	assert.Equal(t, DefaultProfile, cred.Profile)
	assert.Equal(t, "apify_api_secret_token", cred.Token)
	assert.False(t, cred.LastModified.IsZero())

	token, err := m.TokenSource("")()
	require.NoError(t, err)
	assert.Equal(t, "apify_api_secret_token", token)

	require.NoError(t, m.Delete(""))
	_, _, err = m.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	err = m.Delete("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemoryStore("keyring")
	broken.storeErr = errors.New("no dbus session")
	fallback := newMemoryStore("encrypted-file")
	m := NewManagerWithStores(broken, fallback)

	name, err := m.Store("work", "tok")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-file", name)

	_, from, err := m.Retrieve("work")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-file", from)
	assert.Equal(t, []string{"keyring", "encrypted-file"}, m.StoreNames())
}

func TestManagerRejectsEmptyToken(t *testing.T) {
	_, err := NewManagerWithStores(newMemoryStore("x")).Store("", "   ")
	assert.EqualError(t, err, "token is required")
}

func TestManagerAllStoresFail(t *testing.T) {
	s := newMemoryStore("x")
	s.storeErr = errors.New("disk full")

	_, err := NewManagerWithStores(s).Store("", "tok")
	assert.ErrorContains(t, err, "disk full")

	_, err = NewManagerWithStores().Store("", "tok")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	ks, err := NewKeyringStore()
	require.NoError(t, err)
	assert.Equal(t, "keyring", ks.Name())

	_, err = ks.Retrieve("default")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, ks.Store(&Credential{Profile: "default", Token: "tok"}))
	cred, err := ks.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, "tok", cred.Token)

	require.NoError(t, ks.Delete("default"))
	assert.ErrorIs(t, ks.Delete("default"), ErrCredentialsNotFound)
	assert.ErrorIs(t, ks.Store(&Credential{}), ErrInvalidCredentials)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	fs := afero.NewMemMapFs()

	store, err := NewEncryptedFileStore(fs, "/cfg/credentials.enc")
	require.NoError(t, err)

	pass, err := afero.ReadFile(fs, "/cfg/.passphrase")
	require.NoError(t, err)
	assert.NotEmpty(t, pass)

	_, err = store.Retrieve("default")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Credential{Profile: "default", Token: "apify_api_abc"}))
	require.NoError(t, store.Store(&Credential{Profile: "work", Token: "apify_api_xyz"}))

	raw, err := afero.ReadFile(fs, "/cfg/credentials.enc")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "apify_api_abc", "tokens are not stored in clear text")

	// a second instance reuses the generated passphrase
	reopened, err := NewEncryptedFileStore(fs, "/cfg/credentials.enc")
	require.NoError(t, err)
	cred, err := reopened.Retrieve("work")
	require.NoError(t, err)
	assert.Equal(t, "apify_api_xyz", cred.Token)

	require.NoError(t, reopened.Delete("work"))
	require.NoError(t, reopened.Delete("default"))
	exists, err := afero.Exists(fs, "/cfg/credentials.enc")
	require.NoError(t, err)
	assert.False(t, exists, "file is removed with the last credential")
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	fs := afero.NewMemMapFs()

	t.Setenv(PassphraseEnv, "first")
	store, err := NewEncryptedFileStore(fs, "/cfg/credentials.enc")
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Profile: "default", Token: "tok"}))

	t.Setenv(PassphraseEnv, "second")
	other, err := NewEncryptedFileStore(fs, "/cfg/credentials.enc")
	require.NoError(t, err)

	_, err = other.Retrieve("default")
	assert.ErrorContains(t, err, "failed to decrypt data")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "********", MaskToken("short"))
	assert.Equal(t, "apif...wxyz", MaskToken("apify_api_0123456789wxyz"))
}
