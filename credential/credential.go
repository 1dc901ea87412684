// Package credential manages the API key the seller uses to talk to the
// marketplace.
package credential

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoCredential is returned when there is no credential yet.
	ErrNoCredential = errors.New("no credential")

	// ErrMalformedCredential is returned when a stored credential can't be
	// parsed.
	ErrMalformedCredential = errors.New("malformed credential")
)

// Credential is a bearer token for the marketplace API.
type Credential struct {
	// Token is the opaque bearer token.
	Token string

	// Expiration is when the marketplace stops accepting the token. The
	// zero value means unknown.
	Expiration time.Time
}

// Expired returns true if the credential has a known expiration that is not
// after now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.Expiration.IsZero() && !now.Before(c.Expiration)
}

// String returns a redacted representation that is safe to log.
func (c *Credential) String() string {
	token := c.Token
	if len(token) > 6 {
		token = token[:6] + "..."
	}

	if c.Expiration.IsZero() {
		return fmt.Sprintf("credential %s (no expiry)", token)
	}

	return fmt.Sprintf("credential %s (expires %v)", token,
		c.Expiration.UTC().Format(time.RFC3339))
}

// serializeCredential encodes the token on the first line and, if known, the
// expiration as unix seconds on the second.
func serializeCredential(c *Credential) ([]byte, error) {
	if c == nil || c.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedCredential)
	}
	if strings.ContainsAny(c.Token, "\r\n") {
		return nil, fmt.Errorf("%w: token contains a line break",
			ErrMalformedCredential)
	}

	var buf bytes.Buffer
	buf.WriteString(c.Token)
	buf.WriteByte('\n')
	if !c.Expiration.IsZero() {
		buf.WriteString(strconv.FormatInt(c.Expiration.Unix(), 10))
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

// deserializeCredential parses the format written by serializeCredential.
func deserializeCredential(b []byte) (*Credential, error) {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")

	token := strings.TrimSpace(lines[0])
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedCredential)
	}

	cred := &Credential{Token: token}
	if len(lines) > 1 {
		expiry := strings.TrimSpace(lines[1])
		secs, err := strconv.ParseInt(expiry, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid expiry %q",
				ErrMalformedCredential, expiry)
		}
		cred.Expiration = time.Unix(secs, 0)
	}

	return cred, nil
}
