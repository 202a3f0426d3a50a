package memory

import (
	"testing"

	"github.com/iliyamo/senhas/internal/repository/repotest"
)

func TestStoreContract(t *testing.T) {
	s := New()
	repotest.Run(t, s.Tickets(), s.Tenants())
}
