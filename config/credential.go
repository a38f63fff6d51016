package config

import (
	"os"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/pkg/errors"

	"github.com/mensylisir/xmrun/common"
)

// ErrNoPassword means the configured credential source yielded nothing.
var ErrNoPassword = errors.New("no password available")

// Password resolves the target password from its configured source.
// An empty password is acceptable only when a private key identity is configured.
func (c *Config) Password() (string, error) {
	password, err := c.Target.Credential.resolve()
	if err != nil {
		return "", err
	}
	if password == "" && c.Target.Credential.Source != common.CredentialNone && c.Target.Identity == "" {
		return "", errors.Wrapf(ErrNoPassword, "credential source %s", c.Target.Credential.Source)
	}
	return password, nil
}

func (c CredentialSpec) resolve() (string, error) {
	switch c.Source {
	case common.CredentialNone:
		return "", nil
	case common.CredentialEnv:
		return os.Getenv(c.Env), nil
	case common.CredentialFile:
		content, err := os.ReadFile(c.File)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read password file %s", c.File)
		}
		return strings.TrimRight(string(content), "\r\n"), nil
	case common.CredentialSealed:
		token, err := os.ReadFile(c.File)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read sealed password %s", c.File)
		}
		key, err := SealKeyFromEnv()
		if err != nil {
			return "", err
		}
		return Open(strings.TrimSpace(string(token)), key)
	default:
		return "", errors.Errorf("unknown credential source %q", c.Source)
	}
}

// SealKeyFromEnv decodes the Fernet key held in XMRUN_SEAL_KEY.
func SealKeyFromEnv() (*fernet.Key, error) {
	encoded := os.Getenv(common.SealKeyEnv)
	if encoded == "" {
		return nil, errors.Errorf("%s is not set", common.SealKeyEnv)
	}
	key, err := fernet.DecodeKey(encoded)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", common.SealKeyEnv)
	}
	return key, nil
}

// GenerateSealKey returns a fresh Fernet key and its encoded form.
func GenerateSealKey() (*fernet.Key, string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return nil, "", errors.Wrap(err, "generate fernet key")
	}
	return &k, k.Encode(), nil
}

// Seal encrypts plaintext into a Fernet token.
func Seal(plaintext string, key *fernet.Key) (string, error) {
	if key == nil {
		return "", errors.New("seal key is nil")
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", errors.Wrap(err, "encrypt")
	}
	return string(tok), nil
}

// Open decrypts a token produced by Seal. Tokens never expire.
func Open(token string, key *fernet.Key) (string, error) {
	if key == nil {
		return "", errors.New("seal key is nil")
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", errors.New("decrypt: invalid token or wrong key")
	}
	return string(msg), nil
}
