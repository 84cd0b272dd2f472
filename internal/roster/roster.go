// Package roster imports community leaders and members from CSV uploads.
package roster

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleMember Role = "member"
	RoleLeader Role = "leader"
)

func parseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "member", "m":
		return RoleMember, nil
	case "leader", "l", "admin":
		return RoleLeader, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Entry is one roster row.
type Entry struct {
	Line          int
	WalletAddress string
	Name          string
	Role          Role
}

// RowError reports a row that could not be imported.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}
