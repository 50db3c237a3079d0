package locking

import (
	"context"
	"fmt"
	"strings"

	"github.com/katasec/dstream-rowwatch/internal/utils"
)

// LockTypeAzureBlob selects Azure Blob lease locks.
const LockTypeAzureBlob = "azure_blob"

// LockerFactory creates instances of DistributedLocker based on the configuration
type LockerFactory struct {
	configType         string
	connectionString   string
	containerName      string
	dbConnectionString string // used to namespace lock names per database server
}

// NewLockerFactory initializes a new LockerFactory
func NewLockerFactory(configType, connectionString, containerName, dbConnectionString string) (*LockerFactory, error) {
	switch configType {
	case LockTypeAzureBlob:
	default:
		return nil, fmt.Errorf("unsupported lock type: %s", configType)
	}
	return &LockerFactory{
		configType:         configType,
		connectionString:   connectionString,
		containerName:      containerName,
		dbConnectionString: dbConnectionString,
	}, nil
}

// CreateLocker creates a DistributedLocker for the given lock name
func (f *LockerFactory) CreateLocker(ctx context.Context, lockName string) (DistributedLocker, error) {
	locker, err := NewBlobLocker(ctx, f.connectionString, f.containerName, lockName)
	if err != nil {
		return nil, err
	}
	return locker, nil
}

// GetLockName returns the lock name of a watcher: the database server as a folder,
// then the watcher name.
func (f *LockerFactory) GetLockName(watcherName string) string {
	if f.dbConnectionString != "" {
		serverName, err := utils.ExtractServerNameFromConnectionString(f.dbConnectionString)
		if err == nil && serverName != "" {
			return strings.ToLower(serverName) + "/" + GetBlobLockName(watcherName)
		}
	}
	return GetBlobLockName(watcherName)
}

// GetLockedWatchers returns the watchers whose lock is currently held.
func (f *LockerFactory) GetLockedWatchers(ctx context.Context, watcherNames []string) ([]string, error) {
	byLock := make(map[string]string, len(watcherNames))
	lockNames := make([]string, 0, len(watcherNames))
	for _, name := range watcherNames {
		lockName := f.GetLockName(name)
		byLock[lockName] = name
		lockNames = append(lockNames, lockName)
	}

	held, err := lockedBlobs(ctx, f.connectionString, f.containerName, lockNames)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(held))
	for _, lockName := range held {
		out = append(out, byLock[lockName])
	}
	return out, nil
}
