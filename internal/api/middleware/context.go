package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/podcastgate/pkg/models"
)

type contextKey string

const credentialKey contextKey = "credential"

func SetCredential(ctx context.Context, cred *models.Credential) context.Context {
	return context.WithValue(ctx, credentialKey, cred)
}

// GetCredential returns the credential stored by Authenticate.
func GetCredential(r *http.Request) (*models.Credential, bool) {
	cred, ok := r.Context().Value(credentialKey).(*models.Credential)
	return cred, ok && cred != nil
}
