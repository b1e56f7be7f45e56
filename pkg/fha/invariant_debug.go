//go:build fhadebug

package fha

const strictInvariants = true
