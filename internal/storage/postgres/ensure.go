package postgres

import "github.com/felixgeelhaar/codementor/internal/progress"

var _ progress.ProfileStore = (*ProfileStore)(nil)
