package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Entry is a typed view of a directory user entry. Optional fields are empty
// strings when the directory carries no usable attribute.
type Entry struct {
	DN          string
	Email       string
	GivenName   string
	Surname     string
	DisplayName string
}

// Candidate source attributes, tried in order; the first present non-empty
// value wins. Covers common OpenLDAP and Active Directory schemas.
var (
	emailAttributes       = []string{"mail", "email", "userPrincipalName"}
	givenNameAttributes   = []string{"givenName", "gn"}
	surnameAttributes     = []string{"sn", "surname"}
	displayNameAttributes = []string{"displayName", "cn", "name"}
)

// requestedAttributes is the union of all candidate attributes, sent with
// the user search so a single round trip fetches everything.
func requestedAttributes() []string {
	var attrs []string
	attrs = append(attrs, emailAttributes...)
	attrs = append(attrs, givenNameAttributes...)
	attrs = append(attrs, surnameAttributes...)
	attrs = append(attrs, displayNameAttributes...)
	return attrs
}

// entryFrom converts a raw LDAP entry into a typed Entry.
func entryFrom(raw *ldap.Entry) Entry {
	return Entry{
		DN:          raw.DN,
		Email:       firstAttribute(raw, emailAttributes),
		GivenName:   firstAttribute(raw, givenNameAttributes),
		Surname:     firstAttribute(raw, surnameAttributes),
		DisplayName: firstAttribute(raw, displayNameAttributes),
	}
}

// firstAttribute returns the first non-empty value among the candidates.
func firstAttribute(raw *ldap.Entry, candidates []string) string {
	for _, name := range candidates {
		if v := strings.TrimSpace(raw.GetAttributeValue(name)); v != "" {
			return v
		}
	}
	return ""
}

// displayName resolves the best display name for the entry, falling back to
// assembled given/surname and finally the login username.
func (e Entry) displayName(username string) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	full := strings.TrimSpace(e.GivenName + " " + e.Surname)
	if full != "" {
		return full
	}
	return username
}

// email resolves the entry's email, synthesizing a placeholder when the
// directory carries none. The placeholder domain is reserved (RFC 2606) so
// it can never deliver.
func (e Entry) email(username string) string {
	if e.Email != "" {
		return e.Email
	}
	return username + "@directory.invalid"
}
