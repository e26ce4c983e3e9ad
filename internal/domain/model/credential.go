package model

import "time"

// CredentialField is one named secret needed to access a listed account,
// e.g. {Name: "Email", Value: "a@x.com"}.
type CredentialField struct {
	Name  string
	Value string
}

// CredentialVersion is an immutable snapshot of a listing's access secrets.
// Seq increases by one for every version appended to a listing. Submission counts
// seller submissions; a changed version shares the Submission of the original it rotates.
type CredentialVersion struct {
	ID         string
	ListingID  string
	Seq        int64
	Submission int64
	Kind       CredentialKind
	Fields     []CredentialField
	CreatedBy  string
	CreatedAt  time.Time
	Redacted   bool
}

// Redact returns a copy of v with every field value removed.
func (v CredentialVersion) Redact() CredentialVersion {
	fields := make([]CredentialField, len(v.Fields))
	for i, f := range v.Fields {
		fields[i] = CredentialField{Name: f.Name}
	}
	v.Fields = fields
	v.Redacted = true
	return v
}

// Field returns the value of the named field and whether it exists.
func (v CredentialVersion) Field(name string) (string, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
