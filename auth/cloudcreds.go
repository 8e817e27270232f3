package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// OIDC is the mechanism name for a single-step token-based exchange against
// a cloud provider's instance metadata service, used when no static
// password is configured and the driver must fetch a short-lived token
// itself (GCP/Azure style workload identity).
const OIDC = "MONGODB-OIDC"

// CloudTokenProvider fetches a short-lived bearer token to present as the
// SASL payload for a cloud-identity mechanism.
type CloudTokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// defaultHTTPClient is shared across providers so idle metadata-endpoint
// connections are reused between authentication attempts.
var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// gcpTokenProvider fetches an access token from the GCE instance metadata
// server, the same endpoint and response shape a workload running on GCP
// uses to obtain its service account's credentials.
type gcpTokenProvider struct {
	httpClient *http.Client
}

func newGCPTokenProvider() *gcpTokenProvider {
	return &gcpTokenProvider{httpClient: defaultHTTPClient}
}

func (p *gcpTokenProvider) GetToken(ctx context.Context) (string, error) {
	host := "metadata.google.internal"
	if h := os.Getenv("GCE_METADATA_HOST"); h != "" {
		host = h
	}
	url := fmt.Sprintf("http://%s/computeMetadata/v1/instance/service-accounts/default/token", host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("gcp token: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gcp token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gcp token: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gcp token: status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("gcp token: decoding response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("gcp token: empty access_token in response: %s", body)
	}
	return parsed.AccessToken, nil
}

// azureTokenProvider fetches an access token from Azure's instance metadata
// service, mirroring the GCP provider's shape but against Azure's endpoint
// and response envelope.
type azureTokenProvider struct {
	httpClient *http.Client
	resource   string
}

func newAzureTokenProvider(resource string) *azureTokenProvider {
	if resource == "" {
		resource = "https://ossrdbms-aad.database.windows.net"
	}
	return &azureTokenProvider{httpClient: defaultHTTPClient, resource: resource}
}

func (p *azureTokenProvider) GetToken(ctx context.Context) (string, error) {
	url := fmt.Sprintf("http://169.254.169.254/metadata/identity/oauth2/token?api-version=2018-02-01&resource=%s", p.resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("azure token: %w", err)
	}
	req.Header.Set("Metadata", "true")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("azure token: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("azure token: status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("azure token: decoding response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("azure token: empty access_token in response: %s", body)
	}
	return parsed.AccessToken, nil
}

// oidcAuthenticator runs the single-step SASL exchange for a token-bearing
// mechanism: Start fetches a fresh token from the configured provider and
// sends it as the entire payload; the server's one reply completes the
// conversation.
type oidcAuthenticator struct {
	source   string
	provider CloudTokenProvider
}

func newOIDCAuthenticator(cred *Cred) (Authenticator, error) {
	source := cred.Source
	if source == "" {
		source = "$external"
	}
	provider, err := cloudProviderFor(cred.Props["PROVIDER_NAME"], cred.Props["RESOURCE"])
	if err != nil {
		return nil, err
	}
	return &oidcAuthenticator{source: source, provider: provider}, nil
}

func cloudProviderFor(name, resource string) (CloudTokenProvider, error) {
	switch name {
	case "", "gcp":
		return newGCPTokenProvider(), nil
	case "azure":
		return newAzureTokenProvider(resource), nil
	default:
		return nil, fmt.Errorf("auth: unsupported OIDC provider %q", name)
	}
}

func (a *oidcAuthenticator) Auth(ctx context.Context, conn Connection) error {
	token, err := a.provider.GetToken(ctx)
	if err != nil {
		return newAuthError(OIDC, err)
	}
	return conductSaslConversation(ctx, conn, a.source, OIDC, &oidcSaslClient{token: token})
}

// oidcSaslClient is a one-shot SaslClient: the token is the entire
// conversation, so Next is never expected to be called.
type oidcSaslClient struct {
	token string
}

func (c *oidcSaslClient) Start() (string, []byte, error) {
	return OIDC, []byte(c.token), nil
}

func (c *oidcSaslClient) Next(challenge []byte) ([]byte, error) {
	return nil, fmt.Errorf("auth: unexpected continuation for %s", OIDC)
}

func (c *oidcSaslClient) Completed() bool { return true }
