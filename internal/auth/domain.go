package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	PasswordHash    string     `json:"-"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Roles           []string   `json:"roles"`
}

// NewUser carries the fields persisted at registration.
type NewUser struct {
	Email        string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
}

// RegisterInput is the self-service registration request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	// FirstName and LastName seed the profile row created with the account.
	FirstName string
	LastName  string
	// Role optionally requests one extra self-service role on top of student.
	Role string
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`

	IssuedAt         time.Time `json:"-"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshID        string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// OAuthResult is returned by a successful identity-provider login.
type OAuthResult struct {
	Pair    TokenPair
	User    *User
	Created bool
}

// AccessGrant is returned by a successful refresh.
type AccessGrant struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	Roles       []string `json:"roles"`
}

// Me describes the caller: the live account plus the claim its token carries.
type Me struct {
	User        *User    `json:"user"`
	TokenRoles  []string `json:"token_roles"`
	ClaimsStale bool     `json:"claims_stale"`
}
