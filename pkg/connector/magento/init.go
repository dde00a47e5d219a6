package magento

import (
	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/connector/registry"
)

func init() {
	registry.Register(Name, func() connector.Connector {
		return New()
	})
}
