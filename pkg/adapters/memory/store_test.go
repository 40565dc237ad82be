package memory_test

import (
	"testing"

	"github.com/sopnav/sopnav/pkg/adapters/memory"
	"github.com/sopnav/sopnav/pkg/ports"
)

func TestStoreContract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, memory.NewStore())
}
