package constants

import (
	_ "embed"
	"errors"
	"sync"

	json "github.com/bytedance/sonic"
	"github.com/samber/lo"
)

//go:embed permissions.json
var permissionsJSON []byte

var (
	permissionValues map[string][]string
	errLoad          error
	once             = new(sync.Once)
)

// LoadPermissions loads the permission table from the embedded JSON.
func LoadPermissions() (map[string][]string, error) {
	once.Do(func() {
		permissionValues = make(map[string][]string)
		if err := json.Unmarshal(permissionsJSON, &permissionValues); err != nil {
			errLoad = errors.Join(err, errors.New("failed to unmarshal embedded permissions.json"))
		}
	})
	return permissionValues, errLoad
}

// PermissionValues returns the values applesimutils accepts for name.
func PermissionValues(name string) ([]string, bool) {
	if _, err := LoadPermissions(); err != nil {
		return nil, false
	}
	values, ok := permissionValues[name]
	return values, ok
}

// IsValidPermission reports whether name=value can be passed to --setPermissions.
func IsValidPermission(name, value string) bool {
	values, ok := PermissionValues(name)
	return ok && lo.Contains(values, value)
}
