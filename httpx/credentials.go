package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/oauth"

	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/errs"
	"github.com/mbolis/quick-forms/store"
)

// RefreshTTL bounds how long a refresh token stays usable.
const RefreshTTL = 8760 * time.Hour

type credentialsVerifier struct {
	accounts *store.Accounts
	tokens   *store.Tokens
}

func CredentialsVerifier(st *store.Store) oauth.CredentialsVerifier {
	return &credentialsVerifier{accounts: st.Accounts, tokens: st.Tokens}
}

// NewBearerServer issues access and refresh tokens for the password and
// refresh_token grants.
func NewBearerServer(st *store.Store, cfg config.Config) *oauth.BearerServer {
	return oauth.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, CredentialsVerifier(st), nil)
}

// ValidateUser only accepts the account's username. Tokens carry it as their
// credential, so it must not be an email that may later change hands.
func (cs *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	account, err := cs.accounts.Authenticate(r.Context(), username, password)
	if err != nil {
		return err
	}
	if account.Username != username {
		return errs.Unauthorizedf("invalid credentials")
	}
	return nil
}
func (cs *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cs.tokens.Store(context.Background(), credential, tokenID, refreshTokenID, time.Now().Add(RefreshTTL))
}
func (cs *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cs.tokens.Consume(context.Background(), credential, tokenID, refreshTokenID)
}
func (cs *credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	account, err := cs.accounts.GetByUsername(r.Context(), credential)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"account_id": strconv.FormatInt(account.ID, 10),
		"roles":      account.Role.String(),
	}, nil
}
func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}
func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("not supported")
}
