//go:build darwin

package entry

import (
	"os"
	"syscall"
	"time"
)

// fillPlatform mirrors the linux variant; darwin's Stat_t spells the
// timestamp fields differently.
func fillPlatform(e *Entry, info os.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	e.StableID = uint64(st.Ino)
	e.AccessedAt = time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec)
	// Ctime is the closest creation proxy the portable stat surface offers.
	e.CreatedAt = time.Unix(st.Ctimespec.Sec, st.Ctimespec.Nsec)
}
