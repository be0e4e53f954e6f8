// Package pairing turns a device's local and public IP addresses into a
// short list of words that can be read out or pasted to another device,
// and back.
//
// A code is laid out as
//
//	seed  local-run  local-boundary  public-run  public-boundary
//
// The seed word's position in the plain wordlist seeds a shuffle of the
// list. Each address is written as base-len(wordlist) digits, most
// significant first, each digit mapped through the shuffled list. A
// boundary word, taken from a second shuffle, sits after each run and its
// position in that list is the run's length.
package pairing

import (
	"crypto/rand"
	_ "embed"
	"fmt"
	"math/big"
	mrand "math/rand"
	"net"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/bft-labs/clipd/internal/domain"
)

//go:embed wordlist.txt
var wordlistFile string

var (
	words     = strings.Fields(wordlistFile)
	wordIndex = indexOf(words)
	radix     = big.NewInt(int64(len(words)))
)

// Run widths the encoder emits. len(words)^3 exceeds 2^32 and
// len(words)^11 exceeds 2^128.
const (
	ipv4Digits = 3
	ipv6Digits = 11

	minWords = 8
)

// Encode builds a pairing code for the two addresses using a random seed.
func Encode(local, public net.IP) (string, error) {
	n, err := rand.Int(rand.Reader, radix)
	if err != nil {
		return "", fmt.Errorf("draw seed: %w", err)
	}
	return encode(int(n.Int64()), local, public)
}

func encode(seed int, local, public net.IP) (string, error) {
	shuffled := shuffle(seed)
	boundaries := shuffle(seed + len(words))

	out := []string{words[seed]}
	for _, ip := range []net.IP{local, public} {
		digits, err := toDigits(ip)
		if err != nil {
			return "", err
		}
		for _, d := range digits {
			out = append(out, shuffled[d])
		}
		out = append(out, boundaries[len(digits)])
	}
	return strings.Join(out, " "), nil
}

// Decode recovers the local and public addresses from a pairing code.
// Case, surrounding whitespace and Unicode normalisation form are ignored.
func Decode(code string) (local, public net.IP, err error) {
	fields := strings.Fields(cases.Lower(language.Und).String(norm.NFC.String(code)))
	if len(fields) < minWords {
		return nil, nil, fmt.Errorf("%w: %d words, need at least %d", domain.ErrInvalidCode, len(fields), minWords)
	}

	seed, ok := wordIndex[fields[0]]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown seed word %q", domain.ErrInvalidCode, fields[0])
	}
	digitOf := indexOf(shuffle(seed))
	runLen := indexOf(shuffle(seed + len(words)))

	// Walk back from the end: boundary, run, boundary, run.
	end := len(fields) - 1
	publicLen, ok := runLen[fields[end]]
	if !ok || !validRun(publicLen) || end-publicLen < 2 {
		return nil, nil, fmt.Errorf("%w: bad public boundary", domain.ErrInvalidCode)
	}
	publicRun := fields[end-publicLen : end]

	end -= publicLen + 1
	localLen, ok := runLen[fields[end]]
	if !ok || !validRun(localLen) || end-localLen != 1 {
		return nil, nil, fmt.Errorf("%w: bad local boundary", domain.ErrInvalidCode)
	}
	localRun := fields[1:end]

	if local, err = fromWords(localRun, digitOf); err != nil {
		return nil, nil, err
	}
	if public, err = fromWords(publicRun, digitOf); err != nil {
		return nil, nil, err
	}
	return local, public, nil
}

func validRun(n int) bool {
	return (n >= 3 && n <= 4) || (n >= 11 && n <= 16)
}

// toDigits writes ip as fixed-width base-len(words) digits, most significant first.
func toDigits(ip net.IP) ([]int, error) {
	raw, width := ip.To4(), ipv4Digits
	if raw == nil {
		raw, width = ip.To16(), ipv6Digits
	}
	if raw == nil {
		return nil, fmt.Errorf("invalid IP address %q", ip)
	}

	v := new(big.Int).SetBytes(raw)
	digits := make([]int, width)
	mod := new(big.Int)
	for i := width - 1; i >= 0; i-- {
		v.DivMod(v, radix, mod)
		digits[i] = int(mod.Int64())
	}
	return digits, nil
}

func fromWords(run []string, digitOf map[string]int) (net.IP, error) {
	v := new(big.Int)
	for _, w := range run {
		d, ok := digitOf[w]
		if !ok {
			return nil, fmt.Errorf("%w: unknown word %q", domain.ErrInvalidCode, w)
		}
		v.Mul(v, radix)
		v.Add(v, big.NewInt(int64(d)))
	}

	size := net.IPv6len
	if len(run) <= 4 {
		size = net.IPv4len
	}
	if v.BitLen() > size*8 {
		return nil, fmt.Errorf("%w: address out of range", domain.ErrInvalidCode)
	}
	raw := v.FillBytes(make([]byte, size))
	return net.IP(raw), nil
}

// shuffle returns the wordlist permuted deterministically by seed.
func shuffle(seed int) []string {
	out := append([]string(nil), words...)
	r := mrand.New(mrand.NewSource(int64(seed)))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func indexOf(list []string) map[string]int {
	m := make(map[string]int, len(list))
	for i, w := range list {
		m[w] = i
	}
	return m
}
