package secretstore

import "fmt"

// Well-known keys for site credentials.
const (
	KeySiteURL      = "site.url"
	KeySiteUsername = "site.username"
	KeySitePassword = "site.password"
)

// SiteCredentials is the credential bundle needed to drive a casino site.
type SiteCredentials struct {
	SiteURL  string
	Username string
	Password string
}

// RequireString reads a key and errors when it is missing or empty.
func (s *Store) RequireString(key string) (string, error) {
	val, ok, err := s.GetString(key)
	if err != nil {
		return "", err
	}
	if !ok || val == "" {
		return "", fmt.Errorf("secretstore: missing required key %q", key)
	}
	return val, nil
}

// SiteCredentials loads the full credential bundle.
func (s *Store) SiteCredentials() (SiteCredentials, error) {
	var creds SiteCredentials
	var err error
	if creds.SiteURL, err = s.RequireString(KeySiteURL); err != nil {
		return creds, err
	}
	if creds.Username, err = s.RequireString(KeySiteUsername); err != nil {
		return creds, err
	}
	if creds.Password, err = s.RequireString(KeySitePassword); err != nil {
		return creds, err
	}
	return creds, nil
}

// SetSiteCredentials stores the credential bundle.
func (s *Store) SetSiteCredentials(creds SiteCredentials) error {
	if err := s.SetString(KeySiteURL, creds.SiteURL); err != nil {
		return err
	}
	if err := s.SetString(KeySiteUsername, creds.Username); err != nil {
		return err
	}
	return s.SetString(KeySitePassword, creds.Password)
}
