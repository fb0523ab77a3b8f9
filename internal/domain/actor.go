package domain

// Actor is the caller of a flow operation. The engine never reads ambient
// session state; every operation receives one explicitly.
type Actor struct {
	UserID string
	Role   Role
}

func Admin(userID string) Actor  { return Actor{UserID: userID, Role: RoleAdmin} }
func Member(userID string) Actor { return Actor{UserID: userID, Role: RoleMember} }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// ActorFor derives the actor role from the stored user record.
func ActorFor(u *User) Actor {
	if u.IsAdmin {
		return Admin(u.ID)
	}
	return Member(u.ID)
}
