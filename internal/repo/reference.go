package repo

import (
	"fmt"
	"regexp"
	"strings"
)

var referencePattern = regexp.MustCompile(`^(https?)://([^/\s]+)/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)

// Reference is a parsed, normalized repository URL of the form scheme://host/owner/name.
type Reference struct {
	Raw    string `json:"raw"`
	URL    string `json:"url"`
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Owner  string `json:"owner"`
	Name   string `json:"name"`
}

// ValidateSyntax reports whether raw is an http(s)://host/owner/repo[.git][/] URL.
func ValidateSyntax(raw string) bool {
	_, err := ParseReference(raw)
	return err == nil
}

// ParseReference validates raw and returns its normalized form, with any
// trailing slash and .git suffix removed.
func ParseReference(raw string) (Reference, error) {
	trimmed := strings.TrimSpace(raw)
	m := referencePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Reference{}, fmt.Errorf("invalid repository URL: %q", raw)
	}

	name := strings.TrimSuffix(m[4], ".git")
	if name == "" || name == "." || name == ".." || m[3] == "." || m[3] == ".." {
		return Reference{}, fmt.Errorf("invalid repository URL: %q", raw)
	}

	return Reference{
		Raw:    raw,
		URL:    fmt.Sprintf("%s://%s/%s/%s", m[1], m[2], m[3], name),
		Scheme: m[1],
		Host:   m[2],
		Owner:  m[3],
		Name:   name,
	}, nil
}

// CloneURL returns the URL handed to git.
func (r Reference) CloneURL() string {
	return r.URL + ".git"
}

// String returns the normalized URL.
func (r Reference) String() string {
	return r.URL
}
