package xapi

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables holding credentials. The access token must be a
// user-context OAuth 2.0 token with tweet.write scope; posting is not
// possible with an app-only bearer token.
const (
	EnvAccessToken  = "X_ACCESS_TOKEN"
	EnvClientID     = "X_CLIENT_ID"
	EnvClientSecret = "X_CLIENT_SECRET"
)

// ErrNoCredentials means no usable access token was found.
var ErrNoCredentials = errors.New("xapi: missing credentials: set " + EnvAccessToken + " in the environment or a .env file")

// Credentials holds what the client needs to authenticate.
type Credentials struct {
	AccessToken string
}

// LoadCredentials reads credentials from the environment, first merging in a
// dotenv file (explicit path, or ./.env when path is empty). Values already
// set in the environment win over the file.
func LoadCredentials(envFile string) (Credentials, error) {
	loadDotenv(envFile)

	token := strings.TrimSpace(os.Getenv(EnvAccessToken))
	if token == "" {
		return Credentials{}, ErrNoCredentials
	}
	return Credentials{AccessToken: token}, nil
}

func loadDotenv(envFile string) {
	if strings.TrimSpace(envFile) != "" {
		_ = godotenv.Load(envFile)
		return
	}
	_ = godotenv.Load()
}

// AuthStatus reports which credential variables are present, without any
// network call. Used by `xqueue auth check`.
type AuthStatus struct {
	AccessToken  bool
	ClientID     bool
	ClientSecret bool
	Notes        []string
}

func CheckAuth(envFile string) AuthStatus {
	loadDotenv(envFile)

	st := AuthStatus{
		AccessToken:  strings.TrimSpace(os.Getenv(EnvAccessToken)) != "",
		ClientID:     strings.TrimSpace(os.Getenv(EnvClientID)) != "",
		ClientSecret: strings.TrimSpace(os.Getenv(EnvClientSecret)) != "",
	}
	if st.AccessToken {
		st.Notes = append(st.Notes, "access token present; posting possible if it has tweet.write scope")
	} else {
		st.Notes = append(st.Notes, "no access token; posting will fail")
	}
	if st.ClientID != st.ClientSecret {
		st.Notes = append(st.Notes, "client id/secret incomplete (both are needed for token refresh flows)")
	}
	return st
}
