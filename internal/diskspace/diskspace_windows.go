//go:build windows

package diskspace

import "golang.org/x/sys/windows"

func freeBytes(dir string) (int64, error) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}
	// The first figure honors per-user quotas.
	var callerFree, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &callerFree, &total, &totalFree); err != nil {
		return 0, err
	}
	return int64(callerFree), nil
}
