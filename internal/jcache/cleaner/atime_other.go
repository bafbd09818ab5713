//go:build !linux

package cleaner

import (
	"os"
	"time"
)

func atimeOf(info os.FileInfo) time.Time {
	return info.ModTime()
}
