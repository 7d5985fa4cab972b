package translation

import (
	"github.com/nimburion/entitykit/pkg/persistence"
)

// Hooks are entity-specific processors run around the field mapper loop.
// Any member may be nil. A Translator runs the hooks of every registered
// Hooks value in order.
type Hooks[C any, P any] struct {
	BeforeConvert func(client *ObjectWrapper[C], persistent *ObjectWrapper[P], pc *persistence.Context) error
	AfterConvert  func(client *ObjectWrapper[C], persistent *ObjectWrapper[P], pc *persistence.Context) error
	// BeforeCopy may force the copy to be reported dirty.
	BeforeCopy func(client *ObjectWrapper[C], persistent *ObjectWrapper[P], pc *persistence.Context) (bool, error)
	// AfterCopy receives the dirty state so far and may force it to true.
	AfterCopy func(client *ObjectWrapper[C], persistent *ObjectWrapper[P], pc *persistence.Context, dirty bool) (bool, error)
	// AfterRead derives client fields once the mapped fields are converted.
	AfterRead func(persistent *ObjectWrapper[P], client *ObjectWrapper[C], pc *persistence.Context) error
}
