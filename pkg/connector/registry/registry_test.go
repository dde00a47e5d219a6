package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodbi/extractor/pkg/config"
	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/engine"
)

type stubConnector struct{ name string }

func (s *stubConnector) Name() string { return s.name }
func (s *stubConnector) BuildJob(*config.JobConfig, connector.Deps) (*engine.DownloadJob, error) {
	return nil, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("stub", func() connector.Connector {
		return &stubConnector{name: "stub"}
	}))

	conn, err := r.Get("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", conn.Name())
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	factory := func() connector.Connector { return &stubConnector{name: "dup"} }
	require.NoError(t, r.Register("dup", factory))
	require.Error(t, r.Register("dup", factory))
}

func TestGetUnknownConnector(t *testing.T) {
	_, err := NewRegistry().Get("nope")
	require.Error(t, err)
}

func TestListIsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		n := name
		require.NoError(t, r.Register(n, func() connector.Connector {
			return &stubConnector{name: n}
		}))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())
}
