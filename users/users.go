package users

import (
	"sort"

	"golang.org/x/crypto/bcrypt"
)

// Attribute is one directory attribute copied into the session's user.
type Attribute struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// User is the authenticated principal stored in a session.
type User struct {
	Username   string      `json:"username"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Attribute returns the values of the named attribute.
func (u *User) Attribute(name string) []string {
	for _, a := range u.Attributes {
		if a.Name == name {
			return a.Values
		}
	}
	return nil
}

// AttributesFromMap converts a map into name-ordered attributes so that the
// encoded user is stable.
func AttributesFromMap(m map[string][]string) []Attribute {
	if len(m) == 0 {
		return nil
	}
	attrs := make([]Attribute, 0, len(m))
	for name, values := range m {
		attrs = append(attrs, Attribute{Name: name, Values: append([]string(nil), values...)})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	return attrs
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
