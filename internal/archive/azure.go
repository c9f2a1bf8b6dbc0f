package archive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	httpx "github.com/olcbioinformatics/sippr-launcher/internal/http"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// BlobFileUploader is the part of *azblob.Client the uploader needs.
type BlobFileUploader interface {
	UploadFile(ctx context.Context, containerName, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

// AzureUploader puts reports into an Azure Blob container.
type AzureUploader struct {
	client    BlobFileUploader
	baseURL   string
	container string
	prefix    string
	retry     httpx.Config
	logger    *logging.Logger
}

// NewAzureUploader connects with the configured connection string and routes
// SDK traffic through httpClient.
func NewAzureUploader(cfg config.ArchiveConfig, httpClient *http.Client, logger *logging.Logger) (*AzureUploader, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.AzureConnectionString, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return newAzureUploader(client, client.URL(), cfg.AzureContainer, cfg.Prefix, logger), nil
}

func newAzureUploader(client BlobFileUploader, baseURL, container, prefix string, logger *logging.Logger) *AzureUploader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Component("archive-azure")
	return &AzureUploader{
		client:    client,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		container: container,
		prefix:    prefix,
		retry:     retryConfig(logger, container),
		logger:    logger,
	}
}

// Upload writes localPath as a block blob and returns the blob URL.
func (u *AzureUploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	name := objectKey(u.prefix, localPath)
	ct := contentType(localPath)

	err = httpx.ExecuteWithRetry(ctx, u.retry, func() error {
		_, err := u.client.UploadFile(ctx, u.container, name, f, &azblob.UploadFileOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to container %s: %w", localPath, u.container, err)
	}

	location := fmt.Sprintf("%s/%s/%s", u.baseURL, u.container, name)
	u.logger.Info().Str("location", location).Msg("Report archived")
	return location, nil
}
