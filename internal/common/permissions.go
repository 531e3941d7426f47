package common

// File permissions used for everything ddbridge writes.
const (
	// FilePermissionSecure is used for config files and staged data
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for exported downloads
	FilePermissionNormal = 0644

	// DirPermissionSecure is used for the config directory
	DirPermissionSecure = 0700

	// DirPermissionNormal is used for staging and export directories
	DirPermissionNormal = 0755
)
