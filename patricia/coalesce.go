package patricia

import (
	"bytes"
	"fmt"
	"sort"

	radix "github.com/armon/go-radix"

	"github.com/CSUNetSec/bgpfilter/addr"
)

// CoalesceTopLevel reduces prefixes to the subset that is not already
// covered by a shorter prefix in the same set, i.e. the top-level
// supernets. It is adapted from the teacher's (CSUNetSec/protoparse)
// cmd/gobgpdump/format.go deleteChildPrefixes helper, which radix-keys
// every seen prefix on its bitstring and walks the resulting radix tree
// dropping anything with a shorter prefix already present. Here it is a
// reusable library predicate over addr.Prefix rather than a CLI-only
// summarizer tied to a map[string]interface{}.
func CoalesceTopLevel(prefixes []addr.Prefix) []addr.Prefix {
	if len(prefixes) == 0 {
		return nil
	}
	tree := radix.New()
	byKey := make(map[string]int, len(prefixes))
	for i, p := range prefixes {
		k := bitKey(p)
		tree.Insert(k, i)
		byKey[k] = i
	}

	// Walk every key in sorted (shortest-first among shared-prefix
	// runs) order; the first time a key is seen, everything longer
	// that shares it as a bit-prefix is a subnet and is dropped.
	tree.Walk(func(key string, v interface{}) bool {
		if _, ok := byKey[key]; !ok {
			return false // already dropped as someone else's subnet
		}
		tree.WalkPrefix(key, func(s string, _ interface{}) bool {
			if s != key {
				delete(byKey, s)
			}
			return false
		})
		return false
	})

	out := make([]addr.Prefix, 0, len(byKey))
	for _, i := range byKey {
		out = append(out, prefixes[i])
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes[:], out[j].Bytes[:]) < 0
	})
	return out
}

// bitKey renders a prefix's significant bits as a '0'/'1' string, the
// same encoding the teacher's util.IpToRadixkey used, so that
// WalkPrefix("supernet's key") enumerates exactly its subnets.
func bitKey(p addr.Prefix) string {
	var buf bytes.Buffer
	n := p.SigBytes()
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, "%08b", p.Bytes[i])
	}
	s := buf.String()
	if int(p.Width) > len(s) {
		return s
	}
	return s[:p.Width]
}
