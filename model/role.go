package model

import (
	"encoding/json"
	"fmt"
)

type Role int

const (
	RoleUnknown Role = iota
	RoleFaculty
	RoleAdmin
)

// DefaultRole is assigned to accounts registered without an explicit role.
const DefaultRole = RoleFaculty

var roleNames = map[Role]string{
	RoleFaculty: "faculty",
	RoleAdmin:   "admin",
}

func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
