//go:build !fhadebug

package fha

// strictInvariants makes consistency violations panic. Builds with the
// fhadebug tag enable it; release builds repair and count instead.
const strictInvariants = false
