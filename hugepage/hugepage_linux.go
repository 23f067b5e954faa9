//go:build linux
// +build linux

// File: hugepage/hugepage_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reads the default huge-page size from /proc/meminfo's "Hugepagesize:"
// line, the same value `rte_mem_get_default_page_size` sources on Linux.

package hugepage

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const defaultHugePageSize = 2 << 20 // 2 MiB, the common x86_64 default

func probeSize() uintptr {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return fallback()
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Hugepagesize:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil || kb == 0 {
			break
		}
		return uintptr(kb) * 1024
	}
	return fallback()
}

// fallback is used when /proc/meminfo cannot be read or parsed. It still
// consults the platform page size so the returned value is always at
// least one base page, rather than silently returning zero.
func fallback() uintptr {
	pg := unix.Getpagesize()
	if pg <= 0 {
		pg = 4096
	}
	if defaultHugePageSize < pg {
		return uintptr(pg)
	}
	return defaultHugePageSize
}
