package git

import (
	"errors"
	"fmt"
	"net"
	gohttp "net/http"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
)

// authFor resolves the authentication method for a remote URL. The policy is
// resolved per connection and never cached: if the URL is an SSH URL carrying
// a username, the local SSH agent is queried for that user; otherwise the
// statically configured credentials, if any, are used.
func (e *Engine) authFor(url string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}

	if ep.Protocol == "ssh" && ep.User != "" {
		return gitssh.NewSSHAgentAuth(ep.User)
	}

	if e.creds == nil {
		return nil, nil
	}

	switch {
	case e.creds.SSHKey != nil:
		if ep.Protocol != "ssh" {
			return nil, nil
		}
		return newSSHAuth(e.creds.SSHKey.Key, e.creds.SSHKey.Passphrase, e.creds.SSHKey.Fingerprints)

	case e.creds.BasicAuth != nil:
		return &basicAuth{
			Username: e.creds.BasicAuth.Username,
			Password: e.creds.BasicAuth.Password,
			Headers:  e.creds.BasicAuth.Headers,
		}, nil

	case e.creds.BearerToken != "":
		return &http.TokenAuth{Token: e.creds.BearerToken}, nil
	}

	return nil, nil
}

// newSSHAuth creates an SSH authentication method with fingerprint validation.
func newSSHAuth(key string, passphrase string, fingerprints []string) (gitssh.AuthMethod, error) {
	var signer ssh.Signer
	var err error
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey([]byte(key))
	}
	if err != nil {
		return nil, err
	}

	if len(fingerprints) == 0 {
		return nil, errors.New("ssh: at least one fingerprint is required when using ssh_key authentication")
	}

	return &gitssh.PublicKeys{
		User:   "git",
		Signer: signer,
		HostKeyCallbackHelper: gitssh.HostKeyCallbackHelper{
			HostKeyCallback: newCheckFingerprints(fingerprints),
		},
	}, nil
}

// newCheckFingerprints creates an SSH host key callback that validates against known fingerprints.
func newCheckFingerprints(fingerprints []string) ssh.HostKeyCallback {
	m := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		m[fp] = true
	}

	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(key)
		if _, ok := m[fingerprint]; !ok {
			return fmt.Errorf("ssh: unknown fingerprint (%s) for %s", fingerprint, hostname)
		}
		return nil
	}
}

// basicAuth provides HTTP basic authentication but in addition can set
// extra headers required for authentication.
type basicAuth struct {
	Username string
	Password string
	Headers  []string
}

func (a *basicAuth) String() string {
	masked := "*******"
	if a.Password == "" {
		masked = "<empty>"
	}
	return fmt.Sprintf("%s - %s:%s [%s]", a.Name(), a.Username, masked, strings.Join(a.Headers, ", "))
}

func (*basicAuth) Name() string {
	return "http-basic-auth-extra"
}

func (a *basicAuth) SetAuth(r *gohttp.Request) {
	r.SetBasicAuth(a.Username, a.Password)
	for _, header := range a.Headers {
		name, value, found := strings.Cut(header, ":")
		if found {
			r.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
}
