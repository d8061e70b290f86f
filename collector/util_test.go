package collector

import (
	"github.com/filemesh/go-filemesh/bloom"
	"github.com/filemesh/go-filemesh/common/types"
)

func bloomOf(ocids ...types.OCID) *bloom.Filter {
	filter := bloom.New()
	for _, ocid := range ocids {
		filter.Add(ocid.OID)
	}
	return filter
}
