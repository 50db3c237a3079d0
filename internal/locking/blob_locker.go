package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/lease"
	"github.com/hashicorp/go-hclog"

	"github.com/katasec/dstream-rowwatch/internal/logging"
)

// DefaultLeaseDuration is the blob lease length. An abandoned lease expires on its own
// after this long, so a crashed replica frees its watchers without intervention.
const DefaultLeaseDuration = 60 * time.Second

// BlobLocker holds a lease on an empty blob named after the watcher.
type BlobLocker struct {
	containerName string
	lockName      string
	lockTTL       time.Duration

	blobLeaseClient *lease.BlobClient
	log             hclog.Logger
}

// NewBlobLocker ensures the container and lock blob exist and returns a locker for lockName.
func NewBlobLocker(ctx context.Context, connectionString, containerName, lockName string) (*BlobLocker, error) {
	azblobClient, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}
	_, err = azblobClient.CreateContainer(ctx, containerName, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("failed to create or check container: %w", err)
	}

	blockblobClient, err := blockblob.NewClientFromConnectionString(connectionString, containerName, lockName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create block blob client: %w", err)
	}
	_, err = blockblobClient.UploadBuffer(ctx, []byte{}, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.LeaseIDMissing, bloberror.LeaseAlreadyPresent) {
		return nil, fmt.Errorf("failed to ensure blob exists: %w", err)
	}

	blobLeaseClient, err := lease.NewBlobClient(blockblobClient, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob lease client: %w", err)
	}

	return &BlobLocker{
		containerName:   containerName,
		lockName:        lockName,
		lockTTL:         DefaultLeaseDuration,
		blobLeaseClient: blobLeaseClient,
		log:             logging.GetLogger().With("lock", lockName),
	}, nil
}

// AcquireLock tries to acquire a lease on the blob
func (bl *BlobLocker) AcquireLock(ctx context.Context) (string, error) {
	bl.log.Debug("Attempting to acquire lock")

	resp, err := bl.blobLeaseClient.AcquireLease(ctx, int32(bl.lockTTL.Seconds()), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.LeaseAlreadyPresent) {
			bl.log.Info("Lock is held by another instance")
			return "", nil
		}
		return "", fmt.Errorf("failed to acquire lock for blob %s: %w", bl.lockName, err)
	}

	bl.log.Info("Lock acquired", "lease_id", *resp.LeaseID)
	return *resp.LeaseID, nil
}

func (bl *BlobLocker) RenewLock(ctx context.Context) error {
	if _, err := bl.blobLeaseClient.RenewLease(ctx, nil); err != nil {
		return fmt.Errorf("failed to renew lock for blob %s: %w", bl.lockName, err)
	}
	bl.log.Trace("Lock renewed")
	return nil
}

// ReleaseLock releases the lease held by this locker
func (bl *BlobLocker) ReleaseLock(ctx context.Context) error {
	if _, err := bl.blobLeaseClient.ReleaseLease(ctx, nil); err != nil {
		return fmt.Errorf("failed to release lock for blob %s: %w", bl.lockName, err)
	}
	bl.log.Info("Lock released")
	return nil
}

func (bl *BlobLocker) StartLockRenewal(ctx context.Context) {
	bl.log.Debug("Starting lock renewal", "every", bl.lockTTL/2)
	go func() {
		ticker := time.NewTicker(bl.lockTTL / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := bl.RenewLock(ctx); err != nil {
					bl.log.Error("Failed to renew lock", "error", err)
				}
			case <-ctx.Done():
				bl.log.Debug("Stopping lock renewal")
				return
			}
		}
	}()
}

// GetBlobLockName returns the blob name guarding a watcher
func GetBlobLockName(watcherName string) string {
	return watcherName + ".lock"
}

// lockedBlobs reports which of lockNames currently carry an active lease.
func lockedBlobs(ctx context.Context, connectionString, containerName string, lockNames []string) ([]string, error) {
	azblobClient, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}
	containerClient := azblobClient.ServiceClient().NewContainerClient(containerName)

	locked := []string{}
	for _, lockName := range lockNames {
		props, err := containerClient.NewBlobClient(lockName).GetProperties(ctx, nil)
		if err != nil {
			if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to get properties for blob %s: %w", lockName, err)
		}
		if props.LeaseState != nil && *props.LeaseState == lease.StateTypeLeased {
			locked = append(locked, lockName)
		}
	}
	return locked, nil
}
