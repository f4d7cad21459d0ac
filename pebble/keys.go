package pebblestore

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"

	"github.com/velmie/lordn"
)

const sep = 0x00

var (
	prefixRecord     = []byte{'r', sep}
	prefixIndex      = []byte{'i', sep}
	prefixTask       = []byte{'t', sep}
	prefixDispatched = []byte{'d', sep}
)

func validKeyPart(part string) bool {
	return !strings.ContainsRune(part, sep)
}

// partitionPrefix returns the prefix shared by every record of queue and tag.
func partitionPrefix(queue, tag string) []byte {
	key := make([]byte, 0, len(prefixRecord)+len(queue)+len(tag)+2)
	key = append(key, prefixRecord...)
	key = append(key, queue...)
	key = append(key, sep)
	key = append(key, tag...)

	return append(key, sep)
}

func recordKey(queue, tag string, id lordn.ID) []byte {
	return append(partitionPrefix(queue, tag), id[:]...)
}

func indexKey(id lordn.ID) []byte {
	return append(bytes.Clone(prefixIndex), id[:]...)
}

func taskQueuePrefix(queue string) []byte {
	key := make([]byte, 0, len(prefixTask)+len(queue)+1)
	key = append(key, prefixTask...)
	key = append(key, queue...)

	return append(key, sep)
}

func taskKey(queue string, runAt time.Time, id lordn.ID) []byte {
	key := appendTime(taskQueuePrefix(queue), runAt)

	return append(key, id[:]...)
}

func dispatchedKey(at time.Time, id lordn.ID) []byte {
	key := appendTime(bytes.Clone(prefixDispatched), at)

	return append(key, id[:]...)
}

func appendTime(key []byte, t time.Time) []byte {
	nanos := t.UnixNano()
	if nanos < 0 {
		nanos = 0
	}

	return binary.BigEndian.AppendUint64(key, uint64(nanos))
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil
}
