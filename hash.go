package phototriage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
	"github.com/google/uuid"
)

const perceptualHashBits = 64

// sentinelHashPrefix marks exact hashes minted for items without pixel data.
// Real hashes are bare hex digests, so a sentinel never equals one.
const sentinelHashPrefix = "unavailable:"

// exactHash returns the hex sha256 of the encoded byte stream. Two photos
// with equal exact hashes are byte-identical by definition.
func exactHash(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// exactHashPixels digests raw pixel rows when no encoded stream is available,
// keeping extraction deterministic for in-memory images.
func exactHashPixels(img image.Image) string {
	h := sha256.New()
	b := img.Bounds()
	var px [8]byte
	binary.BigEndian.PutUint32(px[0:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(px[4:8], uint32(b.Dy()))
	h.Write(px[:])
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			binary.BigEndian.PutUint16(px[0:2], uint16(r))
			binary.BigEndian.PutUint16(px[2:4], uint16(g))
			binary.BigEndian.PutUint16(px[4:6], uint16(bl))
			binary.BigEndian.PutUint16(px[6:8], uint16(a))
			h.Write(px[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sentinelExactHash mints an opaque hash guaranteed not to equal any valid
// digest, so items without pixel data never group as duplicates.
func sentinelExactHash() string {
	return sentinelHashPrefix + uuid.NewString()
}

// perceptualHash computes the 64-bit average hash: the image is downsized to
// an 8x8 grayscale grid and each cell is thresholded against the mean of all
// 64 cells. Returns ok=false if hashing fails.
func perceptualHash(img image.Image) (uint64, bool) {
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return 0, false
	}
	return h.GetHash(), true
}

// hammingDistance counts differing bits between two perceptual hashes. It is
// symmetric by construction.
func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// perceptualSimilarity maps Hamming distance to [0,1]; 1 means identical.
func perceptualSimilarity(a, b uint64) float64 {
	return 1 - float64(hammingDistance(a, b))/perceptualHashBits
}
