package dgram

import "sort"

const (
	kIndexIncrement = 4
	kIndexDecrement = 1
)

// sizeTable holds the capacities a RecvSizer may propose: 16 byte steps
// below 512, powers of two above.
var sizeTable = func() []int {
	var t []int
	for i := 16; i < 512; i += 16 {
		t = append(t, i)
	}
	for i := 512; i > 0 && i <= 1<<30; i <<= 1 {
		t = append(t, i)
	}
	return t
}()

// sizeTableIndex returns the index of the smallest entry >= size, or the
// last index.
func sizeTableIndex(size int) int {
	i := sort.SearchInts(sizeTable, size)
	if i == len(sizeTable) {
		i--
	}
	return i
}

// RecvSizer proposes the capacity of the next receive buffer from the sizes
// of recent datagrams. It grows quickly when a datagram fills the guess and
// shrinks one step only after two consecutive small datagrams.
type RecvSizer struct {
	minIndex    int
	maxIndex    int
	index       int
	next        int
	limit       int
	decreaseNow bool
}

// NewRecvSizer expects 0 < minSize <= initial <= maxSize.
func NewRecvSizer(minSize, initial, maxSize int) *RecvSizer {
	minIndex := sizeTableIndex(minSize)
	maxIndex := sizeTableIndex(maxSize)
	if maxIndex < minIndex {
		maxIndex = minIndex
	}
	index := min(max(sizeTableIndex(initial), minIndex), maxIndex)
	return &RecvSizer{
		minIndex: minIndex,
		maxIndex: maxIndex,
		index:    index,
		next:     sizeTable[index],
		limit:    maxSize,
	}
}

// Guess is the capacity to allocate for the next receive, clamped to the
// configured maximum.
func (s *RecvSizer) Guess() int {
	return min(s.next, s.limit)
}

// Record feeds back the size of the datagram just received.
func (s *RecvSizer) Record(actual int) {
	if actual <= sizeTable[max(0, s.index-kIndexDecrement-1)] {
		if s.decreaseNow {
			s.index = max(s.index-kIndexDecrement, s.minIndex)
			s.next = sizeTable[s.index]
			s.decreaseNow = false
		} else {
			s.decreaseNow = true
		}
		return
	}
	if actual >= s.next {
		s.index = min(s.index+kIndexIncrement, s.maxIndex)
		s.next = sizeTable[s.index]
		s.decreaseNow = false
	}
}
