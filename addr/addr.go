// Package addr implements the IPv4/IPv6 address and widthed-prefix
// primitives described in spec.md §3 and §4.A: a tagged-family Ip, a
// RawPrefix of (width, bytes), an ApRawPrefix that prepends a 32-bit
// ADD-PATH identifier, and a Prefix that additionally carries AFI/SAFI
// and the add-path flag.
package addr

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Family tags an Ip/Prefix as v4 or v6.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// MaxWidth returns the maximum prefix width for the family (32 or 128).
func (f Family) MaxWidth() int {
	if f == FamilyV6 {
		return 128
	}
	return 32
}

func (f Family) byteLen() int {
	if f == FamilyV6 {
		return 16
	}
	return 4
}

// AFI/SAFI codes used throughout the decoder (spec.md §4.D).
const (
	AfiIPv4 uint16 = 1
	AfiIPv6 uint16 = 2

	SafiUnicast   uint8 = 1
	SafiMulticast uint8 = 2
)

var (
	ErrBadWidth  = errors.New("prefix width exceeds family maximum")
	ErrBadFamily = errors.New("unrecognized address family")
)

// Ip is a tagged family plus raw address bytes (4 or 16 bytes).
type Ip struct {
	Family Family
	Bytes  [16]byte
}

// StringToIp parses a textual IPv4 or IPv6 address.
func StringToIp(s string) (Ip, error) {
	parsed := net.ParseIP(s)
	if parsed == nil {
		return Ip{}, errors.Errorf("invalid IP address %q", s)
	}
	if v4 := parsed.To4(); v4 != nil && !strings.Contains(s, ":") {
		var ip Ip
		ip.Family = FamilyV4
		copy(ip.Bytes[:4], v4)
		return ip, nil
	}
	v6 := parsed.To16()
	if v6 == nil {
		return Ip{}, errors.Errorf("invalid IP address %q", s)
	}
	var ip Ip
	ip.Family = FamilyV6
	copy(ip.Bytes[:16], v6)
	return ip, nil
}

// IpToString renders an Ip using the standard library's dotted/colon form.
func IpToString(ip Ip) string {
	if ip.Family == FamilyV4 {
		return net.IP(ip.Bytes[:4]).String()
	}
	return net.IP(ip.Bytes[:16]).String()
}

// Equal compares two addresses by family and significant bytes.
func Equal(a, b Ip) bool {
	if a.Family != b.Family {
		return false
	}
	n := a.Family.byteLen()
	// Comparing the fixed-size 16-byte arrays first avoids the
	// general-purpose byte loop when the whole arrays are equal.
	return a.Bytes == b.Bytes || bytesEqualN(a.Bytes[:n], b.Bytes[:n])
}

func bytesEqualN(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RawPrefix is a (width, bytes) pair; ceil(width/8) bytes are significant.
type RawPrefix struct {
	Family Family
	Width  uint8
	Bytes  [16]byte
}

// SigBytes returns ceil(width/8).
func (p RawPrefix) SigBytes() int {
	return int(p.Width+7) / 8
}

// ApRawPrefix is a RawPrefix preceded by a 32-bit ADD-PATH identifier.
type ApRawPrefix struct {
	PathId uint32
	RawPrefix
}

// Prefix carries (afi, safi, isAddPath, pathId, width, bytes) as in
// spec.md §3. When IsAddPath is false, PathId MUST be zero.
type Prefix struct {
	Afi       uint16
	Safi      uint8
	IsAddPath bool
	PathId    uint32
	Width     uint8
	Bytes     [16]byte
}

// Family derives the address family from the Afi field.
func (p Prefix) Family() Family {
	if p.Afi == AfiIPv6 {
		return FamilyV6
	}
	return FamilyV4
}

// SigBytes returns ceil(width/8).
func (p Prefix) SigBytes() int {
	return int(p.Width+7) / 8
}

// NewPrefix builds a Prefix, copying only the significant bytes of raw
// and zero-filling the rest (matching the fixed-size-copy discipline of
// spec.md §4.A).
func NewPrefix(afi uint16, safi uint8, isAddPath bool, pathId uint32, width uint8, raw []byte) (Prefix, error) {
	fam := FamilyV4
	if afi == AfiIPv6 {
		fam = FamilyV6
	}
	if int(width) > fam.MaxWidth() {
		return Prefix{}, ErrBadWidth
	}
	p := Prefix{Afi: afi, Safi: safi, IsAddPath: isAddPath, Width: width}
	if isAddPath {
		p.PathId = pathId
	}
	n := p.SigBytes()
	if n > len(raw) {
		return Prefix{}, errors.New("not enough bytes for declared prefix width")
	}
	copy(p.Bytes[:n], raw[:n])
	maskTrailingBits(p.Bytes[:n], width)
	return p, nil
}

// maskTrailingBits clears the bits beyond width in the last significant
// byte, matching the RFC-non-mandatory-but-gobgp-compatible convention
// the teacher's readPrefix already followed.
func maskTrailingBits(b []byte, width uint8) {
	if len(b) == 0 {
		return
	}
	if width%8 == 0 {
		return
	}
	mask := byte(0xff00 >> (width % 8))
	b[len(b)-1] &= mask
}

// StringToPrefix accepts "addr/width" or a bare address (implicit full
// family width).
func StringToPrefix(s string) (Prefix, error) {
	parts := strings.SplitN(s, "/", 2)
	ip, err := StringToIp(parts[0])
	if err != nil {
		return Prefix{}, err
	}
	afi := AfiIPv4
	if ip.Family == FamilyV6 {
		afi = AfiIPv6
	}
	width := ip.Family.MaxWidth()
	if len(parts) == 2 {
		w, err := strconv.Atoi(parts[1])
		if err != nil {
			return Prefix{}, errors.Wrap(err, "invalid prefix width")
		}
		if w < 0 || w > ip.Family.MaxWidth() {
			return Prefix{}, ErrBadWidth
		}
		width = w
	}
	return NewPrefix(uint16(afi), SafiUnicast, false, 0, uint8(width), ip.Bytes[:ip.Family.byteLen()])
}

// PrefixToString writes "addr/width".
func PrefixToString(p Prefix) string {
	fam := p.Family()
	return net.IP(p.Bytes[:fam.byteLen()]).String() + "/" + strconv.Itoa(int(p.Width))
}

// PrefixEqual compares two prefixes field-by-field (ADD-PATH id
// included), kept distinct from the Ip-level Equal above.
func PrefixEqual(a, b Prefix) bool {
	if a.Afi != b.Afi || a.Safi != b.Safi || a.Width != b.Width || a.IsAddPath != b.IsAddPath {
		return false
	}
	if a.IsAddPath && a.PathId != b.PathId {
		return false
	}
	n := a.SigBytes()
	return bytesEqualN(a.Bytes[:n], b.Bytes[:n])
}

// Contains reports whether p fully covers other (p is a supernet of, or
// equal to, other): same family, p.Width <= other.Width, and p's bits
// agree with other's under p.Width.
func Contains(p, other Prefix) bool {
	if p.Family() != other.Family() {
		return false
	}
	if p.Width > other.Width {
		return false
	}
	return sharePrefixBits(p.Bytes[:], other.Bytes[:], int(p.Width))
}

func sharePrefixBits(a, b []byte, width int) bool {
	full := width / 8
	for i := 0; i < full; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	rem := width % 8
	if rem == 0 {
		return true
	}
	mask := byte(0xff00 >> rem)
	return a[full]&mask == b[full]&mask
}

// Overlaps reports whether p and other share the shorter of the two
// widths entirely, i.e. one is a subnet of the other.
func Overlaps(p, other Prefix) bool {
	if p.Family() != other.Family() {
		return false
	}
	if p.Width <= other.Width {
		return sharePrefixBits(p.Bytes[:], other.Bytes[:], int(p.Width))
	}
	return sharePrefixBits(other.Bytes[:], p.Bytes[:], int(other.Width))
}
