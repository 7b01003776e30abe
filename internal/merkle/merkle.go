// Package merkle recomputes a Bitcoin partial Merkle tree from a proof's
// hash/flag lists and reports the transactions it actually commits to.
// The traversal mirrors the standard partial-tree encoding: each internal
// node is visited once, flag bits decide whether to descend or consume the
// next hash verbatim, and a leaf flagged as "of interest" is reported as a
// match (§4.4).
package merkle

import (
	"github.com/btcrelay-go/relay/internal/codec"
	"github.com/btcrelay-go/relay/internal/faults"
	"github.com/btcrelay-go/relay/pkg/util"
)

// Match pairs a leaf's position in the tree with its transaction hash.
type Match struct {
	Position uint32
	TxHash   [32]byte
}

// Result carries the traversal's two outputs: the root the proof computes
// to, and the leaves its flag bits marked as matched.
type Result struct {
	Root    [32]byte
	Matches []Match
}

// Verify recomputes the tree described by proof and returns the extracted
// root alongside any matched leaves. It does not compare the root against
// the block header's merkle_root — callers combine this with the stored
// header themselves (§4.5.1 step 7).
func Verify(proof *codec.MerkleProof) (*Result, error) {
	if proof.Transactions == 0 {
		return nil, faults.New(faults.MalformedMerkleProof, "zero transactions in proof")
	}

	t := &traversal{
		hashes:    proof.Hashes,
		flags:     proof.Flags,
		ntx:       proof.Transactions,
		bitsUsed:  0,
		hashesUse: 0,
	}

	height := t.treeHeight()
	root, err := t.walk(height, 0)
	if err != nil {
		return nil, err
	}

	// A well-formed proof consumes every flag bit it declares room for and
	// every hash it supplies; leftovers indicate a malformed encoding.
	if t.hashesUse != len(t.hashes) {
		return nil, faults.New(faults.MalformedMerkleProof, "proof did not consume all supplied hashes")
	}
	if (t.bitsUsed+7)/8 != len(t.flags) {
		return nil, faults.New(faults.MalformedMerkleProof, "proof did not consume all supplied flag bytes")
	}

	return &Result{Root: root, Matches: t.matches}, nil
}

type traversal struct {
	hashes    [][32]byte
	flags     []byte
	ntx       uint32
	bitsUsed  int
	hashesUse int
	matches   []Match
}

// treeHeight is the smallest height at which the tree's width is 1, i.e.
// ceil(log2(ntx)).
func (t *traversal) treeHeight() int {
	height := 0
	for t.width(height) > 1 {
		height++
	}
	return height
}

// width is the number of nodes at the given height, counting a dangling
// last node once (Bitcoin's standard incomplete-tree convention).
func (t *traversal) width(height int) uint32 {
	return (t.ntx + (1 << uint(height)) - 1) >> uint(height)
}

func (t *traversal) nextFlag() (bool, error) {
	byteIdx := t.bitsUsed / 8
	if byteIdx >= len(t.flags) {
		return false, faults.New(faults.MalformedMerkleProof, "ran out of flag bits")
	}
	bit := (t.flags[byteIdx] >> uint(t.bitsUsed%8)) & 1
	t.bitsUsed++
	return bit == 1, nil
}

func (t *traversal) nextHash() ([32]byte, error) {
	if t.hashesUse >= len(t.hashes) {
		return [32]byte{}, faults.New(faults.MalformedMerkleProof, "ran out of proof hashes")
	}
	h := t.hashes[t.hashesUse]
	t.hashesUse++
	return h, nil
}

// walk descends the tree per the standard partial-Merkle-tree encoding:
// a node either terminates the branch (flag clear, or height 0) by
// consuming the next supplied hash, or is an interior node whose two
// children are recursed into and combined.
func (t *traversal) walk(height, pos int) ([32]byte, error) {
	interesting, err := t.nextFlag()
	if err != nil {
		return [32]byte{}, err
	}

	if height == 0 || !interesting {
		h, err := t.nextHash()
		if err != nil {
			return [32]byte{}, err
		}
		if height == 0 && interesting {
			t.matches = append(t.matches, Match{Position: uint32(pos), TxHash: h})
		}
		return h, nil
	}

	left, err := t.walk(height-1, pos*2)
	if err != nil {
		return [32]byte{}, err
	}

	var right [32]byte
	if uint32(pos*2+1) < t.width(height-1) {
		right, err = t.walk(height-1, pos*2+1)
		if err != nil {
			return [32]byte{}, err
		}
		if right == left {
			// CVE-2012-2459: a proof must never pair a node with itself.
			return [32]byte{}, faults.New(faults.MalformedMerkleProof, "duplicate sibling hash in proof")
		}
	} else {
		right = left
	}

	return pairHash(left, right), nil
}

func pairHash(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return util.DoubleSHA256(buf)
}
