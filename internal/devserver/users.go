package devserver

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aussiebroadwan/sessionkit/pkg/cryptox"
)

var (
	ErrInvalidCredentials = errors.New("devserver: invalid credentials")
	ErrUserNotFound       = errors.New("devserver: user not found")
	ErrUserExists         = errors.New("devserver: user already exists")
)

// User is an account of the dev server.
type User struct {
	Email        string
	PasswordHash string
	Permissions  []string
	Roles        []string
}

// Users is an in-memory account directory.
type Users struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewUsers() *Users {
	return &Users{users: make(map[string]User)}
}

// Add creates an account with an Argon2id password hash.
func (u *Users) Add(email, password string, permissions, roles []string) error {
	email = normaliseEmail(email)
	if email == "" {
		return errors.New("devserver: email is required")
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("devserver: hash password: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[email]; ok {
		return ErrUserExists
	}
	u.users[email] = User{
		Email:        email,
		PasswordHash: hash,
		Permissions:  slices.Clone(permissions),
		Roles:        slices.Clone(roles),
	}
	return nil
}

// Authenticate returns the user for a matching email and password. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (u *Users) Authenticate(email, password string) (User, error) {
	user, err := u.Get(email)
	if err != nil {
		// Same cost as a wrong password.
		_ = cryptox.VerifyPassword(password, dummyHash)
		return User{}, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (u *Users) Get(email string) (User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[normaliseEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// List returns every user sorted by email.
func (u *Users) List() []User {
	u.mu.RLock()
	out := make([]User, 0, len(u.users))
	for _, user := range u.users {
		out = append(out, user)
	}
	u.mu.RUnlock()

	slices.SortFunc(out, func(a, b User) int { return strings.Compare(a.Email, b.Email) })
	return out
}

// SeedUser is one entry of a seed list.
type SeedUser struct {
	Email       string
	Password    string
	Permissions []string
	Roles       []string
}

// ParseSeedUsers parses "email:password:perm,perm:role,role" entries
// separated by ";". Permissions and roles may be empty.
func ParseSeedUsers(list string) ([]SeedUser, error) {
	var out []SeedUser
	for entry := range strings.SplitSeq(list, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 4 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("devserver: bad seed user %q", entry)
		}
		for len(parts) < 4 {
			parts = append(parts, "")
		}
		out = append(out, SeedUser{
			Email:       parts[0],
			Password:    parts[1],
			Permissions: splitList(parts[2]),
			Roles:       splitList(parts[3]),
		})
	}
	return out, nil
}

// Seed adds every entry of seeds.
func (u *Users) Seed(seeds []SeedUser) error {
	for _, s := range seeds {
		if err := u.Add(s.Email, s.Password, s.Permissions, s.Roles); err != nil {
			return fmt.Errorf("seed %s: %w", s.Email, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for v := range strings.SplitSeq(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var dummyHash = func() string {
	h, err := cryptox.HashPassword("not-a-real-password")
	if err != nil {
		panic(err)
	}
	return h
}()
