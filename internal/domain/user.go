package domain

// User is a repository account. Password carries a plain-text password on
// its way in and is never loaded back; PasswordHash is what gets stored.
type User struct {
	ID           ObjectID `json:"id"`
	Login        string   `json:"login"`
	Password     string   `json:"-"`
	PasswordHash string   `json:"-"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Enabled      bool     `json:"enabled"`
}

func (u *User) Kind() Kind              { return KindUser }
func (u *User) ObjectID() ObjectID      { return u.ID }
func (u *User) SetObjectID(id ObjectID) { u.ID = id }
func (u *User) ObjectName() string      { return u.Login }
