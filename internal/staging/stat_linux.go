//go:build linux

package staging

import (
	"io/fs"
	"syscall"
	"time"
)

// changeTime returns the inode change time, if the platform exposes it.
func changeTime(info fs.FileInfo) (time.Time, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(st.Ctim.Sec, st.Ctim.Nsec), true
}
