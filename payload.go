package regionfs

import "time"

// readPayload walks the block chain of an inode and returns its logical
// byte stream. Spec.md §4.5 "Read": stop at a zero NextBlockOffset (tail of
// chain) or a zero-DataBytes block (malformed-safety cutoff), whichever
// comes first.
func (h *handle) readPayload(in onDiskInode) []byte {
	out := make([]byte, 0, in.PayloadBytes)
	cur := in.FirstBlockOffset
	steps := uint32(0)
	for cur.valid() && uint64(len(out)) < in.PayloadBytes && steps < h.hdr.BlockCount {
		steps++
		bh := h.readBlockHeader(cur)
		if bh.DataBytes == 0 {
			break
		}
		n := uint64(bh.DataBytes)
		if remaining := in.PayloadBytes - uint64(len(out)); n > remaining {
			n = remaining
		}
		out = append(out, h.blockPayload(cur)[:n]...)
		if bh.NextBlockOffset == 0 {
			break
		}
		cur = bh.NextBlockOffset
	}
	return out
}

// setPayload overwrites an inode's payload with data, acquiring and
// releasing blocks as needed. Spec.md §4.5 "Write".
//
// The inode's head block is always already allocated (every live inode
// owns one from the moment it is created, even when empty — see
// allocateChild in ops.go) so this never needs to special-case a bare
// inode with no chain at all, except defensively.
func (h *handle) setPayload(idx uint32, data []byte) Errno {
	in := h.readInode(idx)

	head := in.FirstBlockOffset
	if head.valid() {
		h.releaseChain(h.readBlockHeader(head).NextBlockOffset)
	} else {
		nb, errno := h.nextFreeBlock()
		if errno != ErrNone {
			return errno
		}
		h.writeBlockHeader(nb, blockHeader{InUse: 1})
		head = nb
	}

	var firstNew Offset
	cur := head
	remaining := data
	for {
		chunk := remaining
		if len(chunk) > int(h.blockCap) {
			chunk = chunk[:h.blockCap]
		}

		payload := h.blockPayload(cur)
		n := copy(payload, chunk)
		for i := n; i < len(payload); i++ {
			payload[i] = 0
		}
		remaining = remaining[len(chunk):]

		if len(remaining) == 0 {
			h.writeBlockHeader(cur, blockHeader{InUse: 1, DataBytes: uint32(len(chunk))})
			break
		}

		next, errno := h.nextFreeBlock()
		if errno != ErrNone {
			// Roll back: free every block acquired for this write and
			// collapse the chain back down to a single empty head, rather
			// than leaving a half-built chain linked into the region.
			if firstNew.valid() {
				h.releaseChain(firstNew)
			}
			h.writeBlockHeader(head, blockHeader{InUse: 1})
			in.PayloadBytes = 0
			in.FirstBlockOffset = head
			h.writeInode(idx, in)
			return errno
		}

		h.writeBlockHeader(next, blockHeader{InUse: 1})
		h.writeBlockHeader(cur, blockHeader{InUse: 1, DataBytes: uint32(len(chunk)), NextBlockOffset: next})
		if !firstNew.valid() {
			firstNew = next
		}
		cur = next
	}

	now := time.Now()
	in.PayloadBytes = uint64(len(data))
	in.FirstBlockOffset = head
	in.setTimes(now, now)
	h.writeInode(idx, in)
	return ErrNone
}

// appendPayload reads the current payload, concatenates tail, and rewrites
// it. Spec.md §4.5 "Append".
func (h *handle) appendPayload(idx uint32, tail []byte) Errno {
	in := h.readInode(idx)
	cur := h.readPayload(in)
	combined := make([]byte, 0, len(cur)+len(tail))
	combined = append(combined, cur...)
	combined = append(combined, tail...)
	return h.setPayload(idx, combined)
}

// truncateTo grows or shrinks a payload to exactly n bytes, zero-filling
// any newly-exposed tail on growth. Spec.md §4.5 "Truncate to N".
func (h *handle) truncateTo(idx uint32, n uint64) Errno {
	in := h.readInode(idx)
	cur := h.readPayload(in)

	switch {
	case n == uint64(len(cur)):
		return ErrNone
	case n < uint64(len(cur)):
		return h.setPayload(idx, cur[:n])
	default:
		grown := make([]byte, n)
		copy(grown, cur)
		return h.setPayload(idx, grown)
	}
}
