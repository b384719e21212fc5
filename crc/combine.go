package crc

func gf2MatrixTimes(mat *[64]uint64, vec uint64) uint64 {
	var sum uint64
	for i := 0; vec != 0; i++ {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
	}
	return sum
}

func gf2MatrixSquare(square, mat *[64]uint64) {
	for n := range 64 {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
}

// Combine returns the checksum of A||B given crc1 = CRC(A), crc2 = CRC(B)
// and len2 = len(B). It runs in O(log len2) without touching the data.
func Combine(crc1, crc2 uint64, len2 int64) uint64 {
	if len2 <= 0 {
		return crc1
	}

	var even, odd [64]uint64

	// odd holds the operator for one zero bit
	odd[0] = ECMA
	row := uint64(1)
	for n := 1; n < 64; n++ {
		odd[n] = row
		row <<= 1
	}

	gf2MatrixSquare(&even, &odd) // two zero bits
	gf2MatrixSquare(&odd, &even) // four zero bits

	for {
		gf2MatrixSquare(&even, &odd)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&even, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}

		gf2MatrixSquare(&odd, &even)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&odd, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}
	return crc1 ^ crc2
}

// Part is the checksum and length of one contiguous range.
type Part struct {
	CRC  uint64
	Size int64
}

// CombineParts folds consecutive ranges, in order, into one checksum.
func CombineParts(parts []Part) uint64 {
	var sum uint64
	for _, p := range parts {
		sum = Combine(sum, p.CRC, p.Size)
	}
	return sum
}
