package auth

import "github.com/aimd54/lorekeeper/internal/models"

// Principal is the verified caller of a request.
type Principal struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	Username   string      `json:"username"`
	Role       models.Role `json:"role"`
	Reputation int         `json:"reputation"`
}

// PrincipalFromUser builds a principal from a stored user.
func PrincipalFromUser(u *models.User) Principal {
	return Principal{
		ID:         u.PublicID(),
		Email:      u.Email,
		Username:   u.Username,
		Role:       u.Role,
		Reputation: u.Reputation,
	}
}

// CanModerate reports whether the principal may moderate testimonies.
func (p Principal) CanModerate() bool {
	return p.Role.CanModerate()
}

// IsAdmin reports whether the principal is an administrator.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// HasRole reports whether the principal holds one of roles.
func (p Principal) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
