package executor

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mensylisir/xmrun/ip"
)

const hashedHostPrefix = "|1|"

// knownHostFingerprints returns the SHA256 fingerprints of the keys path records for host:port.
// Revoked and cert-authority lines and wildcard patterns are skipped.
func knownHostFingerprints(path, host string, port int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read known hosts file %s", path)
	}
	want := knownhosts.Normalize(ip.JoinHostPort(host, port))

	var fingerprints []string
	for {
		data = bytes.TrimLeft(data, " \t\r\n")
		if len(data) == 0 {
			break
		}
		marker, hosts, key, _, rest, err := ssh.ParseKnownHosts(data)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse known hosts file %s", path)
		}
		data = rest
		if marker != "" {
			continue
		}
		for _, pattern := range hosts {
			if hostMatches(pattern, want) {
				fingerprints = append(fingerprints, ssh.FingerprintSHA256(key))
				break
			}
		}
	}
	return fingerprints, nil
}

func hostMatches(pattern, host string) bool {
	if !strings.HasPrefix(pattern, hashedHostPrefix) {
		return pattern == host
	}
	parts := strings.Split(pattern[len(hashedHostPrefix):], "|")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, salt)
	mac.Write([]byte(host))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)) == parts[1]
}
