package auth

import "fmt"

// ClosedRoles is the fixed set of subteam roles a non-admin user may hold.
var ClosedRoles = []string{
	"DAQ", "Chief", "suspension", "electronic", "drivetrain",
	"driver", "chasis", "aero", "ergo", "powertrain",
}

func isClosedRole(role string) bool {
	for _, r := range ClosedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ValidateRoles enforces the role invariant: admins carry no roles,
// non-admins carry one or two roles drawn from ClosedRoles.
func ValidateRoles(isAdmin bool, roles []string) error {
	if isAdmin {
		if len(roles) != 0 {
			return fmt.Errorf("admin users may not carry subteam roles")
		}
		return nil
	}
	if len(roles) < 1 || len(roles) > 2 {
		return fmt.Errorf("non-admin users must carry 1 or 2 roles")
	}
	seen := make(map[string]bool, len(roles))
	for _, r := range roles {
		if !isClosedRole(r) {
			return fmt.Errorf("unknown role %q", r)
		}
		if seen[r] {
			return fmt.Errorf("duplicate role %q", r)
		}
		seen[r] = true
	}
	return nil
}
