//go:build linux

package entry

import (
	"os"
	"syscall"
	"time"
)

// fillPlatform extracts the inode number and the access/change timestamps
// from the raw stat result when the platform exposes them. The inode acts as
// the opportunistic stable identifier for rename disambiguation; correctness
// never depends on it being present.
func fillPlatform(e *Entry, info os.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	e.StableID = uint64(st.Ino)
	e.AccessedAt = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	// Ctime is the closest creation proxy the portable stat surface offers.
	e.CreatedAt = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
}
