package app

import "syscall"

// diskUsage reports the capacity of the filesystem holding path, or nil
// when it cannot be statted. Available counts only blocks an unprivileged
// recorder can actually write (Bavail, not Bfree).
func diskUsage(path string) map[string]any {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return nil
	}

	bsize := uint64(fs.Bsize)
	total := fs.Blocks * bsize
	used := total - fs.Bfree*bsize
	avail := fs.Bavail * bsize

	out := map[string]any{
		"total_bytes":     total,
		"used_bytes":      used,
		"available_bytes": avail,
	}
	if total > 0 {
		out["used_percent"] = float64(used) / float64(total) * 100
	}
	return out
}
