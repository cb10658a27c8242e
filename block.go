package regionfs

// blockHeader is the fixed record at the start of every MemBlock. The
// payload bytes (blockCap of them) follow immediately after it in the
// region.
type blockHeader struct {
	InUse           uint32
	DataBytes       uint32
	NextBlockOffset Offset
}

func (h *handle) blockOffset(index uint32) Offset {
	return Offset(h.hdr.BlockRegionOffset) + Offset(index)*Offset(h.blockSize)
}

func (h *handle) blockIndex(off Offset) uint32 {
	return uint32((uint64(off) - h.hdr.BlockRegionOffset) / uint64(h.blockSize))
}

func (h *handle) readBlockHeader(off Offset) blockHeader {
	b := h.region[off:]
	return blockHeader{
		InUse:           order.Uint32(b[0:4]),
		DataBytes:       order.Uint32(b[4:8]),
		NextBlockOffset: Offset(order.Uint64(b[8:16])),
	}
}

func (h *handle) writeBlockHeader(off Offset, bh blockHeader) {
	b := h.region[off:]
	order.PutUint32(b[0:4], bh.InUse)
	order.PutUint32(b[4:8], bh.DataBytes)
	order.PutUint64(b[8:16], uint64(bh.NextBlockOffset))
}

// blockPayload returns the payload bytes of the block at off, sized to its
// full capacity. Callers slice it down to DataBytes themselves.
func (h *handle) blockPayload(off Offset) []byte {
	start := off + blockHeaderSize
	return h.region[start : start+Offset(h.blockCap)]
}

// nextFreeBlock linearly scans the block array for the first block whose
// InUse flag is clear. Returns ErrNoSpace if none remain. Spec.md §4.3.
func (h *handle) nextFreeBlock() (Offset, Errno) {
	for i := uint32(0); i < h.hdr.BlockCount; i++ {
		off := h.blockOffset(i)
		if h.readBlockHeader(off).InUse == 0 {
			return off, ErrNone
		}
	}
	return noOffset, ErrNoSpace
}

// freeBlockCount is derived from inode payload sizes rather than by
// scanning the block array, keeping statfs O(inodes) instead of
// O(blocks): block_count - sum(ceil(payload_bytes / capacity)) over every
// live inode. An inode with an empty payload contributes 0 to the sum even
// though it still owns a physical head block — the head block it holds in
// reserve is not "used" by this count's own definition. Spec.md §4.3.
func (h *handle) freeBlockCount() uint32 {
	used := uint64(0)
	for i := uint32(0); i < h.hdr.InodeCount; i++ {
		ino := h.readInode(i)
		if !ino.FirstBlockOffset.valid() {
			continue
		}
		used += ceilDiv(ino.PayloadBytes, uint64(h.blockCap))
	}
	if used > uint64(h.hdr.BlockCount) {
		return 0
	}
	return h.hdr.BlockCount - uint32(used)
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// releaseChain frees every block reachable from head, zeroing each block's
// header and payload as it goes. Spec.md §4.3: capture NextBlockOffset
// before zeroing the current block so a half-torn-down chain is never
// observed mid-release.
func (h *handle) releaseChain(head Offset) {
	for head.valid() {
		next := h.readBlockHeader(head).NextBlockOffset
		h.writeBlockHeader(head, blockHeader{})
		payload := h.blockPayload(head)
		for i := range payload {
			payload[i] = 0
		}
		head = next
	}
}
