package auth

import "example.com/assembly/internal/domain"

// Scopes enforced by the assembly API.
const (
	ScopeAssembliesWrite = "assemblies:write"
	ScopeAssembliesRead  = "assemblies:read"
)

// ScopesForRole maps a worker role to its granted scopes. Assemblers
// start and end assemblies; admins only read and report.
func ScopesForRole(role domain.Role) []string {
	switch role {
	case domain.RoleAdmin:
		return []string{ScopeAssembliesRead}
	case domain.RoleAssembler:
		return []string{ScopeAssembliesRead, ScopeAssembliesWrite}
	default:
		return nil
	}
}
