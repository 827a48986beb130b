package tile

// bitWriter packs values MSB-first into a growing byte slice.
type bitWriter struct {
	buf   []byte
	nbits int
}

func (w *bitWriter) writeBits(value uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (value>>uint(i))&1 != 0 {
			w.buf[w.nbits/8] |= 0x80 >> uint(w.nbits%8)
		}
		w.nbits++
	}
}

// bitReader reads MSB-first values from at most limit bits of buf.
type bitReader struct {
	buf   []byte
	pos   int
	limit int
}

func (r *bitReader) remaining() int {
	return r.limit - r.pos
}

func (r *bitReader) readBits(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v <<= 1
		if r.pos < r.limit && r.buf[r.pos/8]&(0x80>>uint(r.pos%8)) != 0 {
			v |= 1
		}
		r.pos++
	}
	return v
}

func (r *bitReader) readSignedBits(n int) int32 {
	v := r.readBits(n)
	if n > 0 && n < 32 && v&(1<<uint(n-1)) != 0 {
		v |= ^uint32(0) << uint(n)
	}
	return int32(v)
}

// signedBitLen returns the number of bits needed to store v in two's complement.
func signedBitLen(v int32) int {
	if v < 0 {
		v = ^v
	}
	n := 1
	for v != 0 {
		v >>= 1
		n++
	}
	return n
}
