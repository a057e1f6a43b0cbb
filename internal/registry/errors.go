package registry

import "github.com/teosibileau/grillgauge/internal/errors"

const (
	ErrInvalidDBPath = errors.ErrorCode("registry_invalid_db_path")
	ErrStorageInit   = errors.ErrorCode("registry_storage_init_failed")
	ErrStorageAccess = errors.ErrorCode("registry_storage_access_failed")
	ErrStorageClose  = errors.ErrorCode("registry_storage_close_failed")
	ErrSchemaInit    = errors.ErrorCode("registry_schema_init_failed")
)
