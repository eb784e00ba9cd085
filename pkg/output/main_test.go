package output

import (
	"io"
	"os"
	"testing"

	"github.com/arthur-debert/treetx/pkg/logging"
)

func TestMain(m *testing.M) {
	logging.Configure(0, io.Discard)
	os.Exit(m.Run())
}
