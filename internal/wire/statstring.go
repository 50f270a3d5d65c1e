package wire

// EncodeStatString maps an arbitrary byte sequence into a null-free byte
// sequence, so the rest of a GAMEINFO/realm-ad packet can carry it inside a
// null-terminated C string (spec.md §4.1, §8.P5).
//
// Input is processed in blocks of up to 7 bytes. Each block is prefixed
// with one mask byte whose bit 0 is always 1 (guaranteeing the mask byte
// itself is never zero) and whose bit (k+1) is set when source byte k of
// the block was even (including zero). A source byte that was even is
// stored with its low bit forced to 1 (never zero); an odd source byte is
// stored unchanged (already nonzero).
func EncodeStatString(data []byte) []byte {
	out := make([]byte, 0, len(data)+(len(data)/7+1))

	for i := 0; i < len(data); i += 7 {
		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		block := data[i:end]

		mask := byte(1)
		encoded := make([]byte, len(block))
		for k, b := range block {
			if b%2 == 0 {
				mask |= 1 << uint(k+1)
				encoded[k] = b | 1
			} else {
				encoded[k] = b
			}
		}

		out = append(out, mask)
		out = append(out, encoded...)
	}

	return out
}

// DecodeStatString reverses EncodeStatString.
func DecodeStatString(data []byte) []byte {
	out := make([]byte, 0, len(data))

	for i := 0; i < len(data); {
		mask := data[i]
		i++

		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		block := data[i:end]
		i = end

		decoded := make([]byte, len(block))
		for k, b := range block {
			if mask&(1<<uint(k+1)) != 0 {
				decoded[k] = b &^ 1
			} else {
				decoded[k] = b
			}
		}
		out = append(out, decoded...)
	}

	return out
}
