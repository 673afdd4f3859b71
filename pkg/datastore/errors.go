package datastore

import (
	"fmt"

	"github.com/ridgedb/ridge/pkg/errkind"
)

func errTableIDNotFound(tableID uint32) error {
	return fmt.Errorf("datastore: %w: table id %d", errkind.ErrTableNotFound, tableID)
}
