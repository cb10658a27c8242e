package regionfs

import (
	"encoding/binary"
	"log"
	"time"
)

// order is the single byte order used for every integer stored in the
// region. Unlike the teacher package, which switches order based on a
// magic string ("hsqs" vs "sqsh") to stay byte-order portable across
// producers, a regionfs image is only ever read back by the process that
// wrote it (or one sharing its architecture), so one fixed order is
// sufficient and simpler.
var order = binary.LittleEndian

// magicValue identifies a formatted region. Spelled out as the four bytes
// "RFS1" so a hex dump of byte 0 is self-explanatory.
const magicValue uint32 = 0x31534652

const (
	fsHeaderSize    = 4 + 8 + 4 + 4 + 8 + 8 // Magic, RegionUsableBytes, InodeCount, BlockCount, InodeTableOffset, BlockRegionOffset
	inodeRecordSize = 256 + 1 + 4 + 8 + 8 + 8 + 8 + 8 + 8
	blockHeaderSize = 4 + 4 + 8 // InUse, DataBytes, NextBlockOffset
)

// fsHeader is the fixed record at offset 0 of every region.
type fsHeader struct {
	Magic             uint32
	RegionUsableBytes uint64
	InodeCount        uint32
	BlockCount        uint32
	InodeTableOffset  uint64
	BlockRegionOffset uint64
}

func decodeHeader(region []byte) fsHeader {
	var h fsHeader
	h.Magic = order.Uint32(region[0:4])
	h.RegionUsableBytes = order.Uint64(region[4:12])
	h.InodeCount = order.Uint32(region[12:16])
	h.BlockCount = order.Uint32(region[16:20])
	h.InodeTableOffset = order.Uint64(region[20:28])
	h.BlockRegionOffset = order.Uint64(region[28:36])
	return h
}

func encodeHeader(region []byte, h fsHeader) {
	order.PutUint32(region[0:4], h.Magic)
	order.PutUint64(region[4:12], h.RegionUsableBytes)
	order.PutUint32(region[12:16], h.InodeCount)
	order.PutUint32(region[16:20], h.BlockCount)
	order.PutUint64(region[20:28], h.InodeTableOffset)
	order.PutUint64(region[28:36], h.BlockRegionOffset)
}

// Layout carries the host-controlled knobs that only matter the first time
// a region is formatted; attaching an already-formatted region always uses
// its stored InodeCount/BlockCount instead, per spec.
type Layout struct {
	BlockSize uint32 // bytes per block, header included
}

// Option configures a Layout. Mirrors the functional-option shape the
// teacher package uses for its Writer (WithBlockSize, WithCompression):
// small, composable, and ignorable by callers who want the defaults.
type Option func(*Layout)

// WithBlockSize overrides the block size used when formatting a region for
// the first time. Has no effect when attaching an already-formatted one.
func WithBlockSize(n uint32) Option {
	return func(l *Layout) {
		if n > blockHeaderSize {
			l.BlockSize = n
		}
	}
}

// DefaultBlockSize is used when the host does not ask for a specific size.
const DefaultBlockSize = 512

func defaultLayout() Layout {
	return Layout{BlockSize: DefaultBlockSize}
}

// handle is the in-process view of one attached region: the parsed header
// plus the raw bytes it describes. It is deliberately cheap to build and
// never retained — every package-level entry point constructs one on entry
// and lets it go on return, matching the spec's per-call
// (region_base, region_size) contract.
type handle struct {
	region    []byte
	hdr       fsHeader
	blockSize uint32
	blockCap  uint32
}

// Format explicitly (re)initializes region under the given layout options,
// discarding any existing contents. A host that cares about a specific
// block size calls this once before first use; attach's implicit
// format-on-first-touch (using DefaultBlockSize) otherwise happens the
// first time any operation sees an unformatted region.
func Format(region []byte, opts ...Option) Errno {
	layout := defaultLayout()
	for _, o := range opts {
		o(&layout)
	}
	minSize := fsHeaderSize + inodeRecordSize + 2*int(layout.BlockSize)
	if len(region) < minSize {
		return ErrBadFS
	}
	_, errno := format(region, layout)
	return errno
}

// attach recovers a handle from region, formatting it in place if its
// magic number is absent. Mirrors spec.md §4.1.
func attach(region []byte, opts ...Option) (*handle, Errno) {
	layout := defaultLayout()
	for _, o := range opts {
		o(&layout)
	}

	minSize := fsHeaderSize + inodeRecordSize + 2*int(layout.BlockSize)
	if len(region) < minSize {
		return nil, ErrBadFS
	}

	if len(region) >= 4 && order.Uint32(region[0:4]) == magicValue {
		hdr := decodeHeader(region)
		if hdr.InodeCount == 0 || hdr.BlockCount == 0 {
			return nil, ErrBadFS
		}
		hdr.InodeTableOffset = fsHeaderSize
		hdr.BlockRegionOffset = hdr.InodeTableOffset + uint64(hdr.InodeCount)*inodeRecordSize
		blockSize := deriveBlockSize(hdr)
		if blockSize <= blockHeaderSize {
			return nil, ErrBadFS
		}
		h := &handle{region: region, hdr: hdr, blockSize: blockSize, blockCap: blockSize - blockHeaderSize}
		return h, ErrNone
	}

	return format(region, layout)
}

// deriveBlockSize recovers the per-block size of an already-formatted
// region arithmetically: the header never stores it directly, since it is
// fully determined by RegionUsableBytes, BlockCount and the (fixed,
// recomputed) table offsets. One fewer field to keep consistent across a
// reformat.
func deriveBlockSize(hdr fsHeader) uint32 {
	perInodeAndBlock := hdr.RegionUsableBytes / uint64(hdr.BlockCount)
	if perInodeAndBlock <= inodeRecordSize {
		return 0
	}
	return uint32(perInodeAndBlock - inodeRecordSize)
}

func format(region []byte, layout Layout) (*handle, Errno) {
	for i := range region {
		region[i] = 0
	}

	usable := len(region) - fsHeaderSize
	unit := inodeRecordSize + int(layout.BlockSize)
	n := usable / unit
	if n < 1 {
		return nil, ErrBadFS
	}

	hdr := fsHeader{
		Magic:             magicValue,
		InodeCount:        uint32(n),
		BlockCount:        uint32(n),
		InodeTableOffset:  fsHeaderSize,
		RegionUsableBytes: uint64(n) * uint64(inodeRecordSize+int(layout.BlockSize)),
	}
	hdr.BlockRegionOffset = hdr.InodeTableOffset + uint64(n)*inodeRecordSize
	encodeHeader(region, hdr)

	h := &handle{region: region, hdr: hdr, blockSize: layout.BlockSize, blockCap: layout.BlockSize - blockHeaderSize}

	now := time.Now()
	root := onDiskInode{IsDir: 1, FirstBlockOffset: Offset(hdr.BlockRegionOffset)}
	root.setName("/")
	root.setTimes(now, now)
	h.writeInode(0, root)

	h.writeBlockHeader(Offset(hdr.BlockRegionOffset), blockHeader{InUse: 1})

	log.Printf("regionfs: formatted new region (%d inodes, %d blocks of %d bytes)", n, n, layout.BlockSize)
	return h, ErrNone
}
