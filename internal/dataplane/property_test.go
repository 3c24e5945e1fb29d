package dataplane

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ppiankov/justact/internal/model"
)

func TestPropertyAccessRequiresMatchingEffect(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("access succeeds only with a derived effect", prop.ForAll(
		func(actor, key string, seq uint64, write bool) bool {
			p := testPlane()
			id := model.ActionID{Actor: model.ActorID(actor), Seq: seq}
			mode := model.Reads
			var err error
			if write {
				mode = model.Writes
				err = p.Write(model.ActorID(actor), key, []byte("v"), id)
			} else {
				_, _, err = p.Read(model.ActorID(actor), key, id)
			}
			v, ok := p.verdicts.Verdict(id)
			allowed := ok && v.Permits(model.ActorID(actor), mode, key)
			if allowed {
				return err == nil
			}
			return errors.Is(err, model.ErrPermissionDenied)
		},
		gen.OneConstOf("amy", "bob", "eve"),
		gen.OneConstOf("x", "y", "z"),
		gen.UInt64Range(1, 3),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
