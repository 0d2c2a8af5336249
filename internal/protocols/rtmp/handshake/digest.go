package handshake

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
)

const digestLength = 32

var (
	clientFullKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'P', 'l', 'a', 'y', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}
	serverFullKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'M', 'e', 'd', 'i', 'a', ' ',
		'S', 'e', 'r', 'v', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}
	clientPartialKey = clientFullKey[:30]
	serverPartialKey = serverFullKey[:36]
)

func digestPos(p []byte, base int) int {
	pos := 0
	for i := 0; i < 4; i++ {
		pos += int(p[base+i])
	}
	return (pos % 728) + base + 4
}

// makeDigest computes the HMAC of src, skipping the digest at gap if gap > 0.
func makeDigest(key []byte, src []byte, gap int) []byte {
	h := hmac.New(sha256.New, key)
	if gap <= 0 {
		h.Write(src)
	} else {
		h.Write(src[:gap])
		h.Write(src[gap+digestLength:])
	}
	return h.Sum(nil)
}

func findDigest(p []byte, key []byte, base int) int {
	gap := digestPos(p, base)
	digest := makeDigest(key, p, gap)
	if !bytes.Equal(p[gap:gap+digestLength], digest) {
		return -1
	}
	return gap
}

// parseDigest looks for a digest in a C1 or S1 packet signed with peerKey,
// and returns the key used to sign the following C2 or S2 packet.
func parseDigest(p []byte, peerKey []byte, key []byte) ([]byte, bool) {
	pos := findDigest(p, peerKey, 772)
	if pos == -1 {
		pos = findDigest(p, peerKey, 8)
		if pos == -1 {
			return nil, false
		}
	}
	return makeDigest(key, p[pos:pos+digestLength], -1), true
}

// sign writes a digest into a C1 or S1 packet.
func sign(p []byte, key []byte) {
	gap := digestPos(p, 8)
	copy(p[gap:], makeDigest(key, p, gap))
}

// signTail writes a digest at the end of a C2 or S2 packet.
func signTail(p []byte, key []byte) {
	gap := len(p) - digestLength
	copy(p[gap:], makeDigest(key, p, gap))
}

func validateTail(p []byte, key []byte) bool {
	gap := len(p) - digestLength
	return bytes.Equal(p[gap:], makeDigest(key, p, gap))
}
