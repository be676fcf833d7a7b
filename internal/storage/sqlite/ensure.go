package sqlite

import "github.com/felixgeelhaar/codementor/internal/progress"

// Ensure SQLite stores implement the storage interfaces.
var _ progress.ProfileStore = (*ProfileStore)(nil)
