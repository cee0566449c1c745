package models

const (
	RoleAdmin = "admin"
	RoleCrew  = "crew"
)

type User struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Role     string            `json:"role"`
	BranchID string            `json:"branch_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
