//go:build !linux && !darwin

package entry

import "os"

func fillPlatform(e *Entry, info os.FileInfo) {}
