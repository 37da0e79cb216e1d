// Defines the document-side contract of a mutation batch
package host

import (
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/store"
	"github.com/drpcorg/jdoc/utils"
)

// Host supplies one mutation batch with a consistent snapshot of the
// committed cache and the identity of the local writer. Object ids it
// hands out are never reused.
type Host interface {
	// Object reads the committed base cache.
	store.Reader
	Actor() rdx.Actor
	// Clock is a copy of the document clock at batch start.
	Clock() rdx.VV
	Version() uint64
	NewObjectID() rdx.ObjectID
	Logger() utils.Logger
}
