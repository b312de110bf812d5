// internal/tic/checksum.go
package tic

// Checksum computes the TIC check character over data: the low six bits of
// the byte sum, shifted into the printable range.
func Checksum(data []byte) byte {
	var sum uint
	for _, b := range data {
		sum += uint(b)
	}
	return byte(sum&0x3F) + 0x20
}

// VerifyLine checks a data line whose last character is the check character.
// The checked region excludes the check character and the separator before it.
func VerifyLine(line []byte) bool {
	if len(line) < 2 {
		return false
	}
	return Checksum(line[:len(line)-2]) == line[len(line)-1]
}
