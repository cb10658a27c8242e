//go:build fuse

// Command rfsmount mounts a region-backed file as a FUSE filesystem.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/arfs/regionfs"
	"github.com/hanwen/go-fuse/v2/fs"
	"golang.org/x/sys/unix"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <mountpoint> <backing-file> [size-bytes]\n", os.Args[0])
	os.Exit(2)
}

func main() {
	if len(os.Args) < 3 {
		usage()
	}
	mountpoint := os.Args[1]
	backingPath := os.Args[2]

	size := int64(64 << 20) // 64MiB default region
	if len(os.Args) >= 4 {
		n, err := strconv.ParseInt(os.Args[3], 10, 64)
		if err != nil || n <= 0 {
			log.Fatalf("rfsmount: invalid size %q", os.Args[3])
		}
		size = n
	}

	f, err := os.OpenFile(backingPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		log.Fatalf("rfsmount: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatalf("rfsmount: %v", err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			log.Fatalf("rfsmount: %v", err)
		}
	} else {
		size = info.Size()
	}

	region, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		log.Fatalf("rfsmount: mmap: %v", err)
	}
	defer unix.Munmap(region)

	host := regionfs.NewHost(region)

	log.Printf("rfsmount: mounting %s on %s (%d bytes)", backingPath, mountpoint, size)
	if err := regionfs.Mount(mountpoint, host, &fs.Options{}); err != nil {
		log.Fatalf("rfsmount: %v", err)
	}
}
