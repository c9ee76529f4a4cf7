package session

import "time"

// Subject is who a token is issued to.
type Subject struct {
	UserID   int64
	Email    string
	Position string
}

// Session is the verified content of an access token, placed in the request
// context by the middleware.
type Session struct {
	Subject
	ExpiresAt time.Time
}

// Tokens is the pair returned on login and refresh.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}
