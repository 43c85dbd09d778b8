package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore keeps blobs in a single Azure Blob Storage container
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore authenticates with a shared key
func NewAzureStore(accountName, accountKey, container string) (*AzureStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &AzureStore{client: client, container: container}, nil
}

// EnsureContainer creates the container when it does not exist yet
func (s *AzureStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", s.container, err)
	}
	return nil
}

// Put uploads data as a block blob
func (s *AzureStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ref, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, ref, data, opts); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return ref, nil
}

// Get downloads the blob behind ref
func (s *AzureStore) Get(ctx context.Context, ref string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, ref, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := resp.Body
	defer retryReader.Close()

	return io.ReadAll(retryReader)
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (s *AzureStore) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, ref, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}
