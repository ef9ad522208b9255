package push

import (
	"fmt"
	"sync"
)

var (
	instance *Service
	once     sync.Once
	mu       sync.RWMutex
)

// Initialize sets up the global push service instance.
func Initialize(config *ServiceConfig) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		instance = NewService(config)
	})
}

// GetService returns the global push service instance.
func GetService() *Service {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetServiceForTesting allows setting a custom service instance for testing only.
// It returns an error if the service is already initialized.
func SetServiceForTesting(service *Service) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return fmt.Errorf("push service already initialized")
	}

	instance = service
	return nil
}

// MustGetService returns the service instance or panics if not initialized.
func MustGetService() *Service {
	service := GetService()
	if service == nil {
		panic("push service not initialized")
	}
	return service
}

// IsInitialized checks if the push service has been initialized.
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return instance != nil
}
