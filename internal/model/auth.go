package model

// Role is the platform role carried in the caller's token.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// AuthContext is the verified identity of the caller, passed explicitly to
// every service operation.
type AuthContext struct {
	UserID      string
	Role        Role
	DisplayName string
}

// IsTeacher reports whether the caller acts as a teacher.
func (a AuthContext) IsTeacher() bool { return a.Role == RoleTeacher }

// IsStudent reports whether the caller acts as a student.
func (a AuthContext) IsStudent() bool { return a.Role == RoleStudent }

// Profile is the display record of a platform user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}
