package linqpipe

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

// projectMemberInit lowers a MemberInit to an ordered document. At most
// one member may wrap a GroupingKey; when present, that member is
// hoisted to the document's "_id" key (in first position) regardless of
// where it appeared in Members, since every group/project stage that
// carries a grouping key emits it as "_id" by convention. All other
// members keep their declared order.
//
// The returned bool reports whether a GroupingKey member was present
// (and so "_id" is already set). A $project call site uses this to
// decide whether it still needs to append an explicit "_id: 0" itself —
// projectMemberInit doesn't append that on its own since a $group stage
// built from the same document has no such implicit id to suppress.
func projectMemberInit(n expr.MemberInit) (bson.D, bool, error) {
	var idEntry *bson.E
	rest := make(bson.D, 0, len(n.Members))

	for _, m := range n.Members {
		if gk, ok := m.Value.(expr.GroupingKey); ok {
			if idEntry != nil {
				return nil, false, internalInvariant("MemberInit %q has more than one GroupingKey member", m.Name)
			}
			key, err := translateValue(gk.Key)
			if err != nil {
				return nil, false, err
			}
			idEntry = &bson.E{Key: "_id", Value: key}
			continue
		}

		val, err := translateValue(m.Value)
		if err != nil {
			return nil, false, err
		}
		rest = append(rest, bson.E{Key: m.Name, Value: val})
	}

	if idEntry == nil {
		return rest, false, nil
	}
	out := make(bson.D, 0, len(rest)+1)
	out = append(out, *idEntry)
	out = append(out, rest...)
	return out, true, nil
}
