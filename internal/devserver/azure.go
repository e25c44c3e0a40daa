package devserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/cloudsdk/cloudxfer/internal/config"
)

// AzureBackend issues blob SAS URLs with create and write permission.
// Uploads to it must use the raw body encoding.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

// NewAzureBackend authenticates with the storage account's shared key.
// An empty endpoint uses https://<account>.blob.core.windows.net/.
func NewAzureBackend(cfg config.DevServerConfig, httpClient *http.Client) (*AzureBackend, error) {
	if err := requireSettings("azure", map[string]string{
		"azure_account":   cfg.AzureAccount,
		"azure_key":       cfg.AzureKey,
		"azure_container": cfg.AzureContainer,
	}); err != nil {
		return nil, err
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccount, cfg.AzureKey)
	if err != nil {
		return nil, fmt.Errorf("invalid Azure shared key: %w", err)
	}

	serviceURL := cfg.AzureEndpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureAccount)
	}

	var opts *azblob.ClientOptions
	if httpClient != nil {
		opts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Transport: httpClient,
			},
		}
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureBackend{client: client, container: cfg.AzureContainer}, nil
}

func (b *AzureBackend) Name() string { return "azure" }

func (b *AzureBackend) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	blobClient := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(key)
	u, err := blobClient.GetSASURL(sas.BlobPermissions{Create: true, Write: true}, time.Now().Add(ttl), nil)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return u, nil
}

func (b *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
