package regionfs

import (
	"bytes"
	"strconv"
)

// A directory's payload is its own entry table: one "name:offset\n" line
// per child, in insertion order, stored through the same chained-block
// payload machinery as a regular file's contents. Spec.md §4.6.

// dirLookup scans a directory's entry table for name. Once a line's offset
// field parses, the candidate child's own stored name is re-checked against
// name before the match is accepted, so a line can never be matched by a
// coincidental byte overlap with a neighboring line. A line that fails to
// parse ends the scan early rather than being skipped, per spec.md §4.6.
func (h *handle) dirLookup(dirIdx uint32, name string) (uint32, Errno) {
	in := h.readInode(dirIdx)
	for _, line := range splitLines(h.readPayload(in)) {
		entryName, off, ok := parseDirLine(line)
		if !ok {
			break
		}
		if entryName != name {
			continue
		}
		childIdx := h.inodeIndex(off)
		if h.readInode(childIdx).name() != name {
			continue
		}
		return childIdx, ErrNone
	}
	return 0, ErrNoEntry
}

// dirEnumerate returns a directory's child names in on-disk order.
func (h *handle) dirEnumerate(dirIdx uint32) []string {
	in := h.readInode(dirIdx)
	var names []string
	for _, line := range splitLines(h.readPayload(in)) {
		name, _, ok := parseDirLine(line)
		if !ok {
			break
		}
		names = append(names, name)
	}
	return names
}

// dirInsert appends a new "name:offset\n" entry.
func (h *handle) dirInsert(dirIdx uint32, name string, childOffset Offset) Errno {
	line := name + ":" + strconv.FormatUint(uint64(childOffset), 10) + "\n"
	return h.appendPayload(dirIdx, []byte(line))
}

// dirRemove rewrites a directory's payload with name's entry dropped.
// Entries after a malformed line are preserved as-is; the scan only stops
// looking for name once it hits one, matching dirLookup/dirEnumerate.
func (h *handle) dirRemove(dirIdx uint32, name string) Errno {
	in := h.readInode(dirIdx)
	payload := h.readPayload(in)
	lines := splitLines(payload)

	var kept []byte
	removed := false
	stopped := false
	for _, line := range lines {
		if !stopped {
			entryName, _, ok := parseDirLine(line)
			if !ok {
				stopped = true
			} else if entryName == name && !removed {
				removed = true
				continue
			}
		}
		kept = append(kept, line...)
		kept = append(kept, '\n')
	}
	return h.setPayload(dirIdx, kept)
}

func splitLines(payload []byte) [][]byte {
	trimmed := payload
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) == 0 {
		return nil
	}
	return bytes.Split(trimmed, []byte{'\n'})
}

func parseDirLine(line []byte) (name string, off Offset, ok bool) {
	parts := bytes.SplitN(line, []byte{':'}, 2)
	if len(parts) != 2 || len(parts[0]) == 0 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(string(parts[1]), 10, 64)
	if err != nil {
		return "", 0, false
	}
	return string(parts[0]), Offset(n), true
}
