package certificate

import (
	"strconv"

	"axiograph/core"
)

// entityRef renders an entity id the way a certificate payload names an
// endpoint: its declared Name when the PathDB has one (stable and
// human-legible across rebuilds), the decimal id otherwise.
func entityRef(pdb *core.PathDB, id uint64) string {
	if e, ok := pdb.Entity(id); ok && e.Name != "" {
		return e.Name
	}
	return strconv.FormatUint(id, 10)
}
